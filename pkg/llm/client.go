// Package llm provides an Anthropic-backed field extraction client for the
// most expensive tier of the extraction cascade.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the LLM operations the extraction cascade uses.
type Client interface {
	// ExtractField pulls one named field from page text, returning the value,
	// a self-reported confidence in [0,1], and the model identifier used.
	ExtractField(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
}

// ExtractRequest asks for one field from one page.
type ExtractRequest struct {
	Field       string
	Description string // human description of the field, e.g. "vehicle identification number"
	PageText    string
	MaxTokens   int64
}

// ExtractResponse is the model's answer for one field.
type ExtractResponse struct {
	Value      string
	Confidence float64
	Model      string
}

// sdkClient implements Client over the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	model  string
}

// NewClient creates an Anthropic-backed Client using the given API key and
// model ID.
func NewClient(apiKey, model string) Client {
	return &sdkClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

const systemPrompt = `You extract structured vehicle listing fields from auction page text.
Respond with only a JSON object: {"value": "<extracted value or empty string>", "confidence": <0..1>}.
Report low confidence when the page does not clearly state the field.`

// pageTextLimit bounds prompt size for cost control.
const pageTextLimit = 12000

func (c *sdkClient) ExtractField(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	text := req.PageText
	if len(text) > pageTextLimit {
		text = text[:pageTextLimit]
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	prompt := "Field: " + req.Field + " (" + req.Description + ")\n\nPage text:\n" + text

	resp, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "llm: extract %s", req.Field)
	}

	var raw strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			raw.WriteString(block.Text)
		}
	}

	out, err := parseExtraction(raw.String())
	if err != nil {
		return nil, eris.Wrapf(err, "llm: parse response for %s", req.Field)
	}
	out.Model = c.model

	zap.L().Debug("llm: field extracted",
		zap.String("field", req.Field),
		zap.Float64("confidence", out.Confidence),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return out, nil
}

// parseExtraction decodes the model's JSON answer, tolerating surrounding
// prose and markdown fences.
func parseExtraction(raw string) (*ExtractResponse, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, eris.Errorf("no JSON object in response: %q", raw)
	}

	var parsed struct {
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, eris.Wrap(err, "decode extraction JSON")
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return &ExtractResponse{Value: parsed.Value, Confidence: parsed.Confidence}, nil
}
