package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/extract"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/scrape"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/urlguard"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "dealscan.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []int{80, 443, 8080, 8443}, cfg.URLGuard.AllowedPorts)
	assert.True(t, cfg.URLGuard.BlockPrivate)
	assert.Equal(t, 5, cfg.URLGuard.MaxRedirects)
	assert.Equal(t, budget.Caps{HTTP: 1000, Headless: 100, LLM: 50, Captcha: 20}, cfg.Budget.Caps)
	assert.Equal(t, 4, cfg.Scrape.MaxConcurrent)
	assert.Equal(t, 3, cfg.Scrape.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Scrape.BlockBackoffBase)
	assert.Equal(t, 30*time.Minute, cfg.Scrape.BlockCooldown)
	assert.Equal(t, 512, cfg.Anthropic.MaxTokens)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/dealscan
log:
  level: debug
  format: console
urlguard:
  allowed_domains: [govdeals.com, publicsurplus.com]
budget:
  caps:
    llm: 25
  per_site:
    govdeals:
      http: 2000
sites:
  - id: govdeals
    base_url: https://govdeals.com/search
    enabled: true
    listing_selector: div.listing
    pipelines:
      - field: make
        strategies:
          - name: selector
            threshold: 0.5
            selector: span.make
proxies:
  - address: 10.0.0.1:8080
    protocol: http
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"govdeals.com", "publicsurplus.com"}, cfg.URLGuard.AllowedDomains)
	assert.Equal(t, 25, cfg.Budget.Caps.LLM)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Budget.Caps.HTTP)
	assert.Equal(t, 2000, cfg.Budget.PerSite["govdeals"].HTTP)

	require.Len(t, cfg.Sites, 1)
	site := cfg.Sites[0]
	assert.Equal(t, "govdeals", site.ID)
	assert.True(t, site.Enabled)
	assert.Equal(t, "div.listing", site.ListingSelector)
	require.Len(t, site.Pipelines, 1)
	assert.Equal(t, "make", site.Pipelines[0].Field)
	require.Len(t, site.Pipelines[0].Strategies, 1)
	assert.Equal(t, "span.make", site.Pipelines[0].Strategies[0].Selector)

	require.Len(t, cfg.Proxies, 1)
	assert.Equal(t, "10.0.0.1:8080", cfg.Proxies[0].Address)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("DEALSCAN_STORE_DRIVER", "postgres")
	t.Setenv("DEALSCAN_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadSites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sites:
  - id: publicsurplus
    base_url: https://publicsurplus.com/sms/browse
    enabled: true
    listing_selector: tr.auction-row
    pipelines:
      - field: title
        strategies:
          - name: selector
            threshold: 0.5
            selector: td.title a
`), 0644))

	existing := []scrape.SiteConfig{{
		SiteTarget: model.SiteTarget{ID: "govdeals", BaseURL: "https://govdeals.com"},
	}}

	sites, err := LoadSites(path, existing)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "govdeals", sites[0].ID)
	assert.Equal(t, "publicsurplus", sites[1].ID)
	assert.Equal(t, "tr.auction-row", sites[1].ListingSelector)
	require.Len(t, sites[1].Pipelines, 1)
	assert.Equal(t, "td.title a", sites[1].Pipelines[0].Strategies[0].Selector)
}

func TestLoadSites_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  - id: govdeals\n    base_url: https://govdeals.com\n"), 0644))

	existing := []scrape.SiteConfig{{SiteTarget: model.SiteTarget{ID: "govdeals"}}}
	_, err := LoadSites(path, existing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate site id")
}

func TestLoadSites_MissingFile(t *testing.T) {
	_, err := LoadSites(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// baseValidConfig returns a Config that passes scrape-mode validation.
func baseValidConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", Path: "dealscan.db"},
		URLGuard: urlguard.Config{
			AllowedDomains: []string{"govdeals.com"},
		},
		Budget: BudgetConfig{Caps: budget.DefaultCaps()},
		Scrape: scrape.Config{MaxConcurrent: 4, MaxAttempts: 3},
		Sites: []scrape.SiteConfig{{
			SiteTarget: model.SiteTarget{ID: "govdeals", BaseURL: "https://govdeals.com", Enabled: true},
		}},
	}
}

func TestValidateScrape_AllPresent(t *testing.T) {
	assert.NoError(t, baseValidConfig().Validate("scrape"))
}

func TestValidateScrape_MissingPieces(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Sites = nil
	cfg.URLGuard.AllowedDomains = nil

	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one site")
	assert.Contains(t, err.Error(), "allowed_domains")
}

func TestValidateScrape_LLMNeedsKey(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Sites[0].Pipelines = []extract.Pipeline{{
		Field: "vin",
		Strategies: []extract.StrategyConfig{
			{Name: extract.StrategySelector, Threshold: 0.5, Selector: "span.vin"},
			{Name: extract.StrategyLLM, Threshold: 0.6},
		},
	}}

	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("scrape"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Store = StoreConfig{Driver: "postgres"}

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/dealscan"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store = StoreConfig{Driver: "mysql"}
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite or postgres")
}

func TestValidateUnknownMode(t *testing.T) {
	err := baseValidConfig().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := baseValidConfig()

	cfg.Scrape.MaxConcurrent = 0
	err := cfg.Validate("scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent must be between 1 and 50")

	cfg.Scrape.MaxConcurrent = 51
	assert.Error(t, cfg.Validate("scrape"))

	cfg.Scrape.MaxConcurrent = 50
	assert.NoError(t, cfg.Validate("scrape"))
}
