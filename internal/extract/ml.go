package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
)

// mlModelVersion identifies the heuristic field-model registry. Bump when
// patterns change so provenance distinguishes extractor generations.
const mlModelVersion = "dealscan-field-ml@1.2.0"

// fieldModel is one heuristic extractor: a pattern plus a base confidence
// reflecting how discriminative the pattern is.
type fieldModel struct {
	pattern    *regexp.Regexp
	group      int
	confidence float64
	clean      func(string) string
}

// fieldModels maps field names to their heuristic extractors.
var fieldModels = map[string]fieldModel{
	"vin": {
		pattern:    regexp.MustCompile(`\b([A-HJ-NPR-Z0-9]{17})\b`),
		group:      1,
		confidence: 0.85,
	},
	"year": {
		pattern:    regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\b`),
		group:      1,
		confidence: 0.6,
	},
	"price": {
		pattern:    regexp.MustCompile(`(?i)(?:current bid|price|bid)[:\s]*\$?([\d,]+(?:\.\d{2})?)`),
		group:      1,
		confidence: 0.7,
		clean:      func(s string) string { return strings.ReplaceAll(s, ",", "") },
	},
	"mileage": {
		pattern:    regexp.MustCompile(`(?i)([\d,]+)\s*(?:miles|mi\b)`),
		group:      1,
		confidence: 0.75,
		clean:      func(s string) string { return strings.ReplaceAll(s, ",", "") },
	},
	"auction_end": {
		pattern:    regexp.MustCompile(`(?i)(?:auction ends?|closes?|end date)[:\s]*([A-Za-z0-9, :/-]+?)(?:\.|$|\s{2})`),
		group:      1,
		confidence: 0.55,
	},
	"make": {
		pattern:    regexp.MustCompile(`(?i)\b(ford|chevrolet|chevy|dodge|ram|toyota|honda|nissan|gmc|jeep|freightliner|international)\b`),
		group:      1,
		confidence: 0.65,
	},
}

// MLStrategy extracts fields with the heuristic model registry. It runs on
// the headless cost band: production deployments route it through a rendered
// page snapshot, which is the expense being budgeted.
type MLStrategy struct{}

func (s *MLStrategy) Name() StrategyName    { return StrategyML }
func (s *MLStrategy) Band() budget.CostBand { return budget.BandHeadless }

func (s *MLStrategy) Extract(_ context.Context, page *Page, cfg StrategyConfig) (*Attempt, error) {
	fm, ok := fieldModels[cfg.fieldName]
	if !ok {
		return nil, eris.Errorf("ml: no model for field %q", cfg.fieldName)
	}

	locator := mlModelVersion + "/" + cfg.fieldName
	m := fm.pattern.FindStringSubmatch(page.Text())
	if m == nil || len(m) <= fm.group {
		return &Attempt{Locator: locator}, nil
	}

	value := strings.TrimSpace(m[fm.group])
	if fm.clean != nil {
		value = fm.clean(value)
	}

	return &Attempt{
		Value:      value,
		Confidence: fm.confidence,
		Locator:    locator,
	}, nil
}
