package budget

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrExceeded is returned when a spend would cross a daily cap.
// Callers must treat it as fail-fast, never as transient.
var ErrExceeded = eris.New("budget: daily cap exceeded")

// warnThreshold is the usage fraction at which a one-time warning is logged.
const warnThreshold = 0.8

// Caps holds the per-band daily unit caps.
type Caps struct {
	HTTP     int `yaml:"http" mapstructure:"http"`
	Headless int `yaml:"headless" mapstructure:"headless"`
	LLM      int `yaml:"llm" mapstructure:"llm"`
	Captcha  int `yaml:"captcha" mapstructure:"captcha"`
}

// DefaultCaps returns the default per-band daily caps.
func DefaultCaps() Caps {
	return Caps{HTTP: 1000, Headless: 100, LLM: 50, Captcha: 20}
}

func (c Caps) forBand(b CostBand) int {
	switch b {
	case BandHTTP:
		return c.HTTP
	case BandHeadless:
		return c.Headless
	case BandLLM:
		return c.LLM
	case BandCaptcha:
		return c.Captcha
	default:
		return 0
	}
}

// counter tracks spend for one (site, band) pair. Each counter carries its
// own mutex so unrelated sites never serialize on each other.
type counter struct {
	mu        sync.Mutex
	cap       int
	used      int
	resetDate string // date-only, compared lexically
	warned    bool
}

type key struct {
	site string
	band CostBand
}

// BandUsage is a point-in-time usage report for one band.
type BandUsage struct {
	Cap       int     `json:"cap"`
	Used      int     `json:"used"`
	Percent   float64 `json:"percent"`
	Projected int     `json:"projected_end_of_day"`
}

// Enforcer tracks per-site per-band daily spend. Counters are created lazily
// on first reference using the default caps, overridable per site.
type Enforcer struct {
	mu        sync.RWMutex
	counters  map[key]*counter
	defaults  Caps
	overrides map[string]Caps
	now       func() time.Time
}

// NewEnforcer creates an Enforcer with the given default caps and optional
// per-site overrides.
func NewEnforcer(defaults Caps, overrides map[string]Caps) *Enforcer {
	return &Enforcer{
		counters:  make(map[key]*counter),
		defaults:  defaults,
		overrides: overrides,
		now:       time.Now,
	}
}

// WithNow sets the clock source for testing.
func (e *Enforcer) WithNow(now func() time.Time) *Enforcer {
	e.now = now
	return e
}

func (e *Enforcer) capFor(site string, band CostBand) int {
	if o, ok := e.overrides[site]; ok {
		return o.forBand(band)
	}
	return e.defaults.forBand(band)
}

func (e *Enforcer) counterFor(site string, band CostBand) *counter {
	k := key{site: site, band: band}
	e.mu.RLock()
	c, ok := e.counters[k]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.counters[k]; ok {
		return c
	}
	c = &counter{
		cap:       e.capFor(site, band),
		resetDate: e.today(),
	}
	e.counters[k] = c
	return c
}

func (e *Enforcer) today() string {
	return e.now().Format("2006-01-02")
}

// resetIfStale zeroes the counter when the stored reset date is not today.
// Caller must hold c.mu.
func (c *counter) resetIfStale(today string) {
	if c.resetDate != today {
		c.used = 0
		c.resetDate = today
		c.warned = false
	}
}

// CanSpend reports whether spending units against (site, band) would stay
// within the daily cap.
func (e *Enforcer) CanSpend(site string, band CostBand, units int) bool {
	c := e.counterFor(site, band)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(e.today())
	return c.used+units <= c.cap
}

// logUsage emits the over-cap error or the one-time 80% warning.
// Caller must hold c.mu.
func (c *counter) logUsage(site string, band CostBand) {
	if c.used > c.cap {
		zap.L().Error("budget: spend exceeded daily cap",
			zap.String("site", site),
			zap.String("band", band.String()),
			zap.Int("used", c.used),
			zap.Int("cap", c.cap),
		)
		return
	}
	if !c.warned && c.cap > 0 && float64(c.used) >= warnThreshold*float64(c.cap) {
		c.warned = true
		zap.L().Warn("budget: usage crossed 80% of daily cap",
			zap.String("site", site),
			zap.String("band", band.String()),
			zap.Int("used", c.used),
			zap.Int("cap", c.cap),
		)
	}
}

// Spend unconditionally charges units against (site, band). It does not
// clamp: exceeding the cap leaves observable over-budget state, which is a
// caller bug to alert on rather than silently truncate.
func (e *Enforcer) Spend(site string, band CostBand, units int) {
	c := e.counterFor(site, band)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(e.today())
	c.used += units
	c.logUsage(site, band)
}

// reserve atomically checks the cap and charges units under the counter's
// lock. Concurrent reservations on the same (site, band) serialize here, so
// they can never collectively overshoot the cap.
func (e *Enforcer) reserve(site string, band CostBand, units int) bool {
	c := e.counterFor(site, band)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(e.today())
	if c.used+units > c.cap {
		return false
	}
	c.used += units
	c.logUsage(site, band)
	return true
}

// Guard refuses with ErrExceeded before op runs when the budget is exhausted.
// Otherwise it reserves the units up front and invokes op; the charge stands
// whether op succeeds or fails, so a failing paid operation may not be
// retried for free.
func (e *Enforcer) Guard(ctx context.Context, site string, band CostBand, units int, op func(ctx context.Context) error) error {
	if !e.reserve(site, band, units) {
		return eris.Wrapf(ErrExceeded, "site %s band %s", site, band)
	}
	if err := op(ctx); err != nil {
		return eris.Wrapf(err, "budget: guarded operation failed (site %s band %s, charged %d)", site, band, units)
	}
	return nil
}

// IsExceeded reports whether err is (or wraps) a budget refusal.
func IsExceeded(err error) bool {
	return eris.Is(err, ErrExceeded)
}

// Usage returns per-band usage for a site, including a linear end-of-day
// projection from hours elapsed since midnight.
func (e *Enforcer) Usage(site string) map[CostBand]BandUsage {
	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	hours := now.Sub(midnight).Hours()

	out := make(map[CostBand]BandUsage, len(Bands))
	for _, band := range Bands {
		c := e.counterFor(site, band)
		c.mu.Lock()
		c.resetIfStale(e.today())
		used, capN := c.used, c.cap
		c.mu.Unlock()

		u := BandUsage{Cap: capN, Used: used}
		if capN > 0 {
			u.Percent = float64(used) / float64(capN) * 100
		}
		if hours > 0 {
			u.Projected = int(float64(used) / hours * 24)
		} else {
			u.Projected = used
		}
		out[band] = u
	}
	return out
}
