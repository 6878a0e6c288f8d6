package model

import "time"

// SiteStatus is the operational state of a scrape target.
type SiteStatus string

const (
	SiteActive      SiteStatus = "active"
	SiteBlocked     SiteStatus = "blocked"
	SiteMaintenance SiteStatus = "maintenance"
	SiteError       SiteStatus = "error"
)

// SiteTarget describes one auction site in the registry.
// Status and LastScrape are the only fields mutated at runtime; everything
// else is replaced wholesale on config reload.
type SiteTarget struct {
	ID           string        `json:"id" yaml:"id" mapstructure:"id"`
	BaseURL      string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Category     string        `json:"category" yaml:"category" mapstructure:"category"`
	Priority     int           `json:"priority" yaml:"priority" mapstructure:"priority"`
	Enabled      bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Status       SiteStatus    `json:"status" yaml:"status" mapstructure:"status"`
	RateInterval time.Duration `json:"rate_interval" yaml:"rate_interval" mapstructure:"rate_interval"`
	LastScrape   time.Time     `json:"last_scrape,omitempty" yaml:"-" mapstructure:"-"`
	NextRetry    time.Time     `json:"next_retry,omitempty" yaml:"-" mapstructure:"-"`
}

// ProxyStatus is the state of a proxy endpoint.
type ProxyStatus string

const (
	ProxyActive   ProxyStatus = "active"
	ProxyBlocked  ProxyStatus = "blocked"
	ProxyRotating ProxyStatus = "rotating"
)

// ProxyEndpoint is one entry in the rotation pool.
type ProxyEndpoint struct {
	Address     string      `json:"address" yaml:"address" mapstructure:"address"`
	Protocol    string      `json:"protocol" yaml:"protocol" mapstructure:"protocol"`
	Country     string      `json:"country" yaml:"country" mapstructure:"country"`
	Status      ProxyStatus `json:"status" yaml:"status" mapstructure:"status"`
	SuccessRate float64     `json:"success_rate" yaml:"-" mapstructure:"-"`
}
