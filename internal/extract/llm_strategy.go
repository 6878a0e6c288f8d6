package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/pkg/llm"
)

// fieldDescriptions give the model context for each extractable field.
var fieldDescriptions = map[string]string{
	"vin":         "17-character vehicle identification number",
	"make":        "vehicle manufacturer",
	"model":       "vehicle model name",
	"year":        "model year",
	"price":       "current bid or asking price in USD",
	"mileage":     "odometer reading in miles",
	"title":       "listing title",
	"location":    "city and state of the vehicle",
	"auction_end": "auction end date/time",
	"condition":   "stated vehicle condition",
	"description": "seller's description",
}

// LLMStrategy extracts a field by asking the LLM client. Most expensive tier.
type LLMStrategy struct {
	client llm.Client
}

// NewLLMStrategy creates an LLMStrategy over the given client.
func NewLLMStrategy(client llm.Client) *LLMStrategy {
	return &LLMStrategy{client: client}
}

func (s *LLMStrategy) Name() StrategyName    { return StrategyLLM }
func (s *LLMStrategy) Band() budget.CostBand { return budget.BandLLM }

func (s *LLMStrategy) Extract(ctx context.Context, page *Page, cfg StrategyConfig) (*Attempt, error) {
	if s.client == nil {
		return nil, eris.New("llm: no client configured")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := s.client.ExtractField(ctx, llm.ExtractRequest{
		Field:       cfg.fieldName,
		Description: fieldDescriptions[cfg.fieldName],
		PageText:    page.Text(),
	})
	if err != nil {
		return nil, err
	}

	return &Attempt{
		Value:      resp.Value,
		Confidence: resp.Confidence,
		Locator:    resp.Model,
	}, nil
}
