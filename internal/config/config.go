// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/budget"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/scrape"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/urlguard"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig           `yaml:"store" mapstructure:"store"`
	URLGuard  urlguard.Config       `yaml:"urlguard" mapstructure:"urlguard"`
	Budget    BudgetConfig          `yaml:"budget" mapstructure:"budget"`
	Anthropic AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	Scrape    scrape.Config         `yaml:"scrape" mapstructure:"scrape"`
	Proxies   []model.ProxyEndpoint `yaml:"proxies" mapstructure:"proxies"`
	Sites     []scrape.SiteConfig   `yaml:"sites" mapstructure:"sites"`
	SitesFile string                `yaml:"sites_file" mapstructure:"sites_file"`
	Log       LogConfig             `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// BudgetConfig configures the daily spend enforcer.
type BudgetConfig struct {
	Caps    budget.Caps            `yaml:"caps" mapstructure:"caps"`
	PerSite map[string]budget.Caps `yaml:"per_site" mapstructure:"per_site"`
}

// AnthropicConfig holds Anthropic API settings for the LLM extraction tier.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "dealscan.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("urlguard.allowed_ports", []int{80, 443, 8080, 8443})
	v.SetDefault("urlguard.block_private", true)
	v.SetDefault("urlguard.max_redirects", 5)
	v.SetDefault("budget.caps.http", 1000)
	v.SetDefault("budget.caps.headless", 100)
	v.SetDefault("budget.caps.llm", 50)
	v.SetDefault("budget.caps.captcha", 20)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("scrape.max_concurrent", 4)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.block_backoff_base", "30s")
	v.SetDefault("scrape.retry_backoff_base", "2s")
	v.SetDefault("scrape.block_cooldown", "30m")
	v.SetDefault("scrape.fetch_timeout", "30s")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// LoadSites reads an external site registry file. Sites defined there are
// appended to any sites from the main config; duplicate IDs are rejected so
// a stale registry never silently shadows the main config.
func LoadSites(path string, existing []scrape.SiteConfig) ([]scrape.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sites file %s", path)
	}

	var reg struct {
		Sites []scrape.SiteConfig `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrapf(err, "config: parse sites file %s", path)
	}

	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.ID] = true
	}
	out := existing
	for _, s := range reg.Sites {
		if s.ID == "" {
			return nil, eris.Errorf("config: sites file %s: site with empty id", path)
		}
		if seen[s.ID] {
			return nil, eris.Errorf("config: sites file %s: duplicate site id %q", path, s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

// Validate checks the fields a given command mode depends on. Collected
// problems are reported together so operators fix the config in one pass.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.Path == "" {
				problems = append(problems, "store.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}

	switch mode {
	case "scrape":
		checkStore()
		if len(c.Sites) == 0 {
			problems = append(problems, "at least one site must be configured")
		}
		if len(c.URLGuard.AllowedDomains) == 0 {
			problems = append(problems, "urlguard.allowed_domains must not be empty")
		}
		if c.Scrape.MaxConcurrent < 1 || c.Scrape.MaxConcurrent > 50 {
			problems = append(problems, "scrape.max_concurrent must be between 1 and 50")
		}
		if c.Budget.Caps.HTTP < 0 || c.Budget.Caps.Headless < 0 || c.Budget.Caps.LLM < 0 || c.Budget.Caps.Captcha < 0 {
			problems = append(problems, "budget caps must be >= 0")
		}
		usesLLM := false
		for _, site := range c.Sites {
			for _, p := range site.Pipelines {
				for _, s := range p.Strategies {
					if s.Name == "llm" {
						usesLLM = true
					}
				}
			}
		}
		if usesLLM && c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required when an llm strategy is configured")
		}
	case "migrate", "listings", "usage":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
