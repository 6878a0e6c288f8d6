package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// ExtractorVersion is recorded in every provenance lineage block.
const ExtractorVersion = "1.2.0"

// Pipeline is the ordered strategy cascade for one (site, field), cheapest
// band first. Each entry's implicit fallback is the next entry.
type Pipeline struct {
	Field      string           `yaml:"field" mapstructure:"field"`
	Strategies []StrategyConfig `yaml:"strategies" mapstructure:"strategies"`
	Rules      []ValidationRule `yaml:"-" mapstructure:"-"`
}

// Cascade dispatches strategies for a site's configured fields, consulting
// the budget enforcer before every paid attempt.
type Cascade struct {
	enforcer   *budget.Enforcer
	strategies map[StrategyName]Strategy
	now        func() time.Time
}

// NewCascade creates a Cascade over the given strategy implementations.
func NewCascade(enforcer *budget.Enforcer, strategies ...Strategy) *Cascade {
	m := make(map[StrategyName]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Name()] = s
	}
	return &Cascade{enforcer: enforcer, strategies: m, now: time.Now}
}

// WithNow sets the clock source for testing.
func (c *Cascade) WithNow(now func() time.Time) *Cascade {
	c.now = now
	return c
}

// Run executes the cascade for one field on one page.
//
// Budget-exhausted paid strategies count as failed attempts and advance to
// the next strategy without a charge. Failed-but-charged attempts still
// accumulate into total cost. When every strategy is exhausted the
// highest-confidence attempt is retained for diagnostics.
func (c *Cascade) Run(ctx context.Context, siteID string, page *Page, p Pipeline) model.FieldExtraction {
	rules := p.Rules
	if rules == nil {
		rules = DefaultRules(p.Field)
	}

	var (
		totalCost int
		fallbacks int
		best      *model.FieldExtraction
	)

	for i, cfg := range p.Strategies {
		cfg.fieldName = p.Field
		strat, ok := c.strategies[cfg.Name]
		if !ok {
			zap.L().Warn("extract: unknown strategy in pipeline",
				zap.String("field", p.Field),
				zap.String("strategy", string(cfg.Name)),
			)
			continue
		}
		if i > 0 {
			fallbacks++
		}

		attempt, charged, err := c.attempt(ctx, siteID, page, strat, cfg)
		totalCost += charged
		if err != nil {
			if budget.IsExceeded(err) {
				zap.L().Warn("extract: budget exhausted, falling back",
					zap.String("site", siteID),
					zap.String("field", p.Field),
					zap.String("strategy", string(cfg.Name)),
				)
			} else {
				zap.L().Debug("extract: strategy failed",
					zap.String("field", p.Field),
					zap.String("strategy", string(cfg.Name)),
					zap.Error(err),
				)
			}
			continue
		}

		vr := Validate(attempt.Value, rules)
		fe := c.buildExtraction(page, p.Field, strat, cfg, attempt, vr, fallbacks, totalCost)

		if attempt.Confidence >= cfg.Threshold && vr.Valid {
			return fe
		}
		if best == nil || fe.Confidence > best.Confidence {
			best = &fe
		}
	}

	// Exhausted. Report failure but keep the best attempt for diagnostics.
	if best != nil {
		best.Valid = false
		best.TotalCost = totalCost
		best.FallbackAttempts = fallbacks
		if len(best.ValidationErrors) == 0 {
			best.ValidationErrors = []string{"no strategy met its confidence threshold"}
		}
		return *best
	}
	return model.FieldExtraction{
		FieldName:        p.Field,
		Valid:            false,
		ValidationErrors: []string{"all strategies failed"},
		FallbackAttempts: fallbacks,
		TotalCost:        totalCost,
		Provenance: model.Provenance{
			FieldName: p.Field,
			Lineage: model.Lineage{
				SourceURL:        page.Raw.URL,
				Timestamp:        c.now(),
				ExtractorVersion: ExtractorVersion,
			},
		},
	}
}

// attempt executes one strategy, routing paid bands through the budget guard.
// Returns the attempt, the units actually charged, and any error.
func (c *Cascade) attempt(ctx context.Context, siteID string, page *Page, strat Strategy, cfg StrategyConfig) (*Attempt, int, error) {
	units := cfg.units()

	if strat.Band().Free() || c.enforcer == nil {
		a, err := strat.Extract(ctx, page, cfg)
		if err != nil {
			return nil, units, err
		}
		return a, units, nil
	}

	var a *Attempt
	err := c.enforcer.Guard(ctx, siteID, strat.Band(), units, func(ctx context.Context) error {
		var opErr error
		a, opErr = strat.Extract(ctx, page, cfg)
		return opErr
	})
	if budget.IsExceeded(err) {
		// Refused before the operation ran; nothing was charged.
		return nil, 0, err
	}
	if err != nil {
		return nil, units, err
	}
	return a, units, nil
}

func (c *Cascade) buildExtraction(page *Page, field string, strat Strategy, cfg StrategyConfig, a *Attempt, vr ValidationResult, fallbacks, totalCost int) model.FieldExtraction {
	return model.FieldExtraction{
		FieldName:        field,
		Value:            a.Value,
		Confidence:       a.Confidence,
		StrategyUsed:     string(strat.Name()),
		Valid:            vr.Valid,
		ValidationErrors: vr.Errors,
		FallbackAttempts: fallbacks,
		TotalCost:        totalCost,
		Provenance: model.Provenance{
			FieldName:     field,
			Strategy:      string(strat.Name()),
			Confidence:    a.Confidence,
			Locator:       a.Locator,
			ValidatorPass: vr.Valid,
			RenderMode:    page.Raw.RenderMode,
			RetryCount:    cfg.Retries,
			CostBand:      strat.Band().String(),
			UnitsConsumed: cfg.units(),
			Lineage: model.Lineage{
				SourceURL:        page.Raw.URL,
				Timestamp:        c.now(),
				ExtractorVersion: ExtractorVersion,
			},
		},
	}
}

// ExtractPage runs every configured pipeline against a page. One field's
// failure never aborts the others.
func (c *Cascade) ExtractPage(ctx context.Context, siteID string, page *Page, pipelines []Pipeline) model.ExtractionSummary {
	start := c.now()
	summary := model.ExtractionSummary{
		URL:        page.Raw.URL,
		SiteID:     siteID,
		Timestamp:  start,
		RenderMode: page.Raw.RenderMode,
	}

	for _, p := range pipelines {
		fe := c.Run(ctx, siteID, page, p)
		summary.Fields = append(summary.Fields, fe)
		summary.TotalCost += fe.TotalCost
		if fe.Valid {
			summary.SuccessfulFields++
		} else {
			summary.FailedFields++
			for _, e := range fe.ValidationErrors {
				summary.Meta.Errors = append(summary.Meta.Errors, fe.FieldName+": "+e)
			}
		}
	}

	summary.Elapsed = time.Since(start)
	return summary
}

// ErrNoPipeline is returned when a site has no configured pipelines.
var ErrNoPipeline = eris.New("extract: no pipelines configured for site")
