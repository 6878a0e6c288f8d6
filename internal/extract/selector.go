package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
)

// SelectorStrategy extracts a field with a configured CSS selector. Free: it
// operates on the already-fetched page without any paid service.
type SelectorStrategy struct{}

func (s *SelectorStrategy) Name() StrategyName    { return StrategySelector }
func (s *SelectorStrategy) Band() budget.CostBand { return budget.BandHTTP }

// Extract reads the first match of cfg.Selector, taking cfg.Attr when set and
// element text otherwise. Confidence scales down for empty or suspiciously
// long values.
func (s *SelectorStrategy) Extract(_ context.Context, page *Page, cfg StrategyConfig) (*Attempt, error) {
	if cfg.Selector == "" {
		return nil, eris.New("selector: no selector configured")
	}

	doc, err := page.Doc()
	if err != nil {
		return nil, err
	}

	sel := doc.Find(cfg.Selector).First()
	if sel.Length() == 0 {
		return &Attempt{Locator: cfg.Selector}, nil
	}

	var value string
	if cfg.Attr != "" {
		value, _ = sel.Attr(cfg.Attr)
	} else {
		value = sel.Text()
	}
	value = strings.TrimSpace(value)

	confidence := 0.9
	switch {
	case value == "":
		confidence = 0
	case len(value) > 500:
		// Selector likely grabbed a container, not the field.
		confidence = 0.3
	}

	return &Attempt{
		Value:      value,
		Confidence: confidence,
		Locator:    cfg.Selector,
	}, nil
}
