// Package scrape coordinates concurrent site scraping: guarded fetching,
// block detection, proxy rotation, per-site pacing, and the per-site run
// state machine.
package scrape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/canonical"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/extract"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/resilience"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/store"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/urlguard"
)

// Config controls orchestrator-wide behavior.
type Config struct {
	MaxConcurrent    int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BlockBackoffBase time.Duration `yaml:"block_backoff_base" mapstructure:"block_backoff_base"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base" mapstructure:"retry_backoff_base"`
	BlockCooldown    time.Duration `yaml:"block_cooldown" mapstructure:"block_cooldown"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// DefaultConfig returns conservative orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:    4,
		MaxAttempts:      3,
		BlockBackoffBase: 30 * time.Second,
		RetryBackoffBase: 2 * time.Second,
		BlockCooldown:    30 * time.Minute,
		FetchTimeout:     30 * time.Second,
	}
}

// SiteConfig is one site's scrape plan: where to fetch, how to split the
// results page into rows, and the extraction pipelines to run per row.
type SiteConfig struct {
	model.SiteTarget `yaml:",inline" mapstructure:",squash"`

	ListingSelector string             `yaml:"listing_selector" mapstructure:"listing_selector"`
	Pipelines       []extract.Pipeline `yaml:"pipelines" mapstructure:"pipelines"`
}

// Orchestrator fans sites out over a bounded worker pool and walks each
// through pending → in_progress → {success | blocked | failed}.
type Orchestrator struct {
	cfg     Config
	fetcher *Fetcher
	cascade *extract.Cascade
	db      store.Store

	mu       sync.Mutex
	states   map[string]model.SiteRunState
	limiters map[string]*rate.Limiter

	stopped atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires an Orchestrator. db may be nil for dry runs.
func NewOrchestrator(cfg Config, fetcher *Fetcher, cascade *extract.Cascade, db store.Store) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BlockBackoffBase <= 0 {
		cfg.BlockBackoffBase = def.BlockBackoffBase
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = def.RetryBackoffBase
	}
	if cfg.BlockCooldown <= 0 {
		cfg.BlockCooldown = def.BlockCooldown
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		cascade:  cascade,
		db:       db,
		states:   make(map[string]model.SiteRunState),
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stop requests a graceful stop: sites not yet started stay pending.
// In-flight sites finish their current attempt.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
	zap.L().Info("scrape: stop requested")
}

// State returns the current run state for a site.
func (o *Orchestrator) State(siteID string) model.SiteRunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[siteID]; ok {
		return s
	}
	return model.RunPending
}

func (o *Orchestrator) setState(siteID string, s model.SiteRunState) {
	o.mu.Lock()
	prev := o.states[siteID]
	o.states[siteID] = s
	o.mu.Unlock()
	zap.L().Info("scrape: state transition",
		zap.String("site", siteID),
		zap.String("from", string(prev)),
		zap.String("to", string(s)),
	)
}

func (o *Orchestrator) limiter(site SiteConfig) *rate.Limiter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.limiters[site.ID]; ok {
		return l
	}
	interval := site.RateInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	l := rate.NewLimiter(rate.Every(interval), 1)
	o.limiters[site.ID] = l
	return l
}

// Run scrapes every enabled site concurrently and returns the aggregated
// summary. Individual site failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context, sites []SiteConfig) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)

	var mu sync.Mutex
	for _, site := range sites {
		site := site
		if !site.Enabled {
			continue
		}
		if site.Status != "" && site.Status != model.SiteActive {
			zap.L().Info("scrape: site not active, skipping",
				zap.String("site", site.ID),
				zap.String("status", string(site.Status)),
			)
			continue
		}
		if !site.NextRetry.IsZero() && o.now().Before(site.NextRetry) {
			zap.L().Info("scrape: site in cooldown, skipping",
				zap.String("site", site.ID),
				zap.Time("next_retry", site.NextRetry),
			)
			continue
		}
		o.setState(site.ID, model.RunPending)

		g.Go(func() error {
			if o.stopped.Load() || ctx.Err() != nil {
				return nil
			}
			res := o.scrapeSite(ctx, summary.RunID, site)
			mu.Lock()
			summary.Results = append(summary.Results, res)
			summary.VehiclesFound += res.VehiclesFound
			switch res.State {
			case model.RunSuccess:
				summary.Successes++
			case model.RunBlocked:
				summary.Blocks++
			case model.RunFailed:
				summary.Failures++
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "scrape: run")
	}
	summary.Elapsed = time.Since(summary.StartedAt)

	zap.L().Info("scrape: run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("vehicles", summary.VehiclesFound),
		zap.Int("successes", summary.Successes),
		zap.Int("blocks", summary.Blocks),
		zap.Int("failures", summary.Failures),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// conditionalOptions loads the validators from the last stored fetch of the
// site's base URL so unchanged pages come back as 304s instead of full bodies.
func (o *Orchestrator) conditionalOptions(ctx context.Context, site SiteConfig) FetchOptions {
	var opts FetchOptions
	if o.db == nil {
		return opts
	}
	prev, err := o.db.LatestRawPage(ctx, site.ID, site.BaseURL)
	if err != nil {
		zap.L().Warn("scrape: loading cached validators failed",
			zap.String("site", site.ID),
			zap.Error(err),
		)
		return opts
	}
	if prev != nil {
		opts.ETag = prev.ETag
		opts.LastModified = prev.LastModified
	}
	return opts
}

// scrapeSite walks one site through the state machine. Blocks back off
// exponentially; transport errors back off linearly; guard denials fail fast.
func (o *Orchestrator) scrapeSite(ctx context.Context, runID string, site SiteConfig) model.ScrapingResult {
	start := o.now()
	o.setState(site.ID, model.RunInProgress)
	res := model.ScrapingResult{SiteID: site.ID, State: model.RunInProgress}

	blockCfg := resilience.Exponential(o.cfg.MaxAttempts, o.cfg.BlockBackoffBase)
	retryCfg := resilience.Linear(o.cfg.MaxAttempts, o.cfg.RetryBackoffBase)

	var page *model.RawPage
	var lastErr error
	opts := o.conditionalOptions(ctx, site)

attempts:
	for attempt := 0; attempt < o.cfg.MaxAttempts; attempt++ {
		if err := o.limiter(site).Wait(ctx); err != nil {
			lastErr = err
			break
		}

		page, lastErr = o.fetcher.Fetch(ctx, site.ID, site.BaseURL, opts)
		if lastErr == nil {
			break
		}

		switch {
		case errors.Is(lastErr, ErrNotModified):
			// Content unchanged since the last run; nothing to do.
			res.State = model.RunSuccess
			res.Elapsed = time.Since(start)
			o.setState(site.ID, model.RunSuccess)
			return res

		case errors.Is(lastErr, urlguard.ErrDenied), errors.Is(lastErr, ErrRedirectLimit):
			// Never retried: the URL itself is the problem.
			break attempts

		default:
			if kind, blocked := IsBlock(lastErr); blocked {
				res.Blocked = true
				if attempt >= o.cfg.MaxAttempts-1 {
					break attempts
				}
				delay := resilience.Backoff(attempt, blockCfg)
				zap.L().Warn("scrape: blocked, backing off",
					zap.String("site", site.ID),
					zap.String("kind", string(kind)),
					zap.Duration("delay", delay),
					zap.Int("attempt", attempt+1),
				)
				if o.sleep(ctx, delay) != nil {
					break attempts
				}
				continue
			}

			if resilience.IsTransient(lastErr) {
				if attempt >= o.cfg.MaxAttempts-1 {
					break attempts
				}
				resilience.Logger(site.ID, "fetch")(attempt+1, lastErr)
				if o.sleep(ctx, resilience.Backoff(attempt, retryCfg)) != nil {
					break attempts
				}
				continue
			}

			// Permanent failure.
			break attempts
		}
	}

	if lastErr != nil {
		res.Errors = append(res.Errors, lastErr.Error())
		res.Elapsed = time.Since(start)
		if res.Blocked {
			res.State = model.RunBlocked
			next := o.now().Add(o.cfg.BlockCooldown)
			res.NextRetry = &next
			o.setState(site.ID, model.RunBlocked)
		} else {
			res.State = model.RunFailed
			o.setState(site.ID, model.RunFailed)
		}
		return res
	}

	res.ProxyUsed = page.ProxyAddr
	found, errs := o.processPage(ctx, runID, site, page)
	res.VehiclesFound = found
	res.Errors = append(res.Errors, errs...)
	res.Elapsed = time.Since(start)
	res.State = model.RunSuccess
	o.setState(site.ID, model.RunSuccess)
	return res
}

// processPage splits the fetched page into listing rows, runs the extraction
// cascade on each, and persists deduplicated listings with provenance.
func (o *Orchestrator) processPage(ctx context.Context, runID string, site SiteConfig, raw *model.RawPage) (int, []string) {
	var errs []string

	if o.db != nil {
		if err := o.db.SaveRawPage(ctx, *raw); err != nil {
			errs = append(errs, "save raw page: "+err.Error())
		}
	}

	rows, err := SplitListings(extract.NewPage(*raw), site.ListingSelector)
	if err != nil {
		return 0, append(errs, "split listings: "+err.Error())
	}

	var (
		listings  []model.Listing
		summaries = make(map[string]model.ExtractionSummary)
	)
	for _, row := range rows {
		summary := o.cascade.ExtractPage(ctx, site.ID, row, site.Pipelines)
		if summary.SuccessfulFields == 0 {
			continue
		}
		l := ListingFromSummary(site.ID, summary)
		if err := ValidateListing(l); err != nil {
			zap.L().Debug("scrape: dropping incomplete listing",
				zap.String("site", site.ID),
				zap.String("url", l.ListingURL),
				zap.Error(err),
			)
			continue
		}
		listings = append(listings, l)
		summaries[l.ContentHash] = summary
	}

	dedup := canonical.DeduplicateByHash(listings)
	if len(dedup.Duplicates) > 0 {
		zap.L().Info("scrape: in-run duplicates dropped",
			zap.String("site", site.ID),
			zap.Int("duplicates", len(dedup.Duplicates)),
		)
	}

	stored := 0
	for _, l := range dedup.Unique {
		if o.db == nil {
			stored++
			continue
		}
		exists, err := o.db.ExistsByHash(ctx, l.ContentHash)
		if err != nil {
			errs = append(errs, "exists check: "+err.Error())
			continue
		}
		if err := o.db.UpsertListing(ctx, l); err != nil {
			errs = append(errs, "upsert: "+err.Error())
			continue
		}
		if !exists {
			stored++
			if summary, ok := summaries[l.ContentHash]; ok {
				for _, f := range summary.Fields {
					if err := o.db.SaveProvenance(ctx, runID, f); err != nil {
						errs = append(errs, "save provenance: "+err.Error())
						break
					}
				}
			}
		}
	}
	return stored, errs
}
