package model

import "time"

// SiteRunState is the per-site state machine for one run.
type SiteRunState string

const (
	RunPending    SiteRunState = "pending"
	RunInProgress SiteRunState = "in_progress"
	RunSuccess    SiteRunState = "success"
	RunBlocked    SiteRunState = "blocked"
	RunFailed     SiteRunState = "failed"
)

// ScrapingResult is the terminal per-site outcome of one run.
type ScrapingResult struct {
	SiteID        string        `json:"site_id"`
	State         SiteRunState  `json:"state"`
	VehiclesFound int           `json:"vehicles_found"`
	Errors        []string      `json:"errors,omitempty"`
	Blocked       bool          `json:"blocked"`
	ProxyUsed     string        `json:"proxy_used,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	NextRetry     *time.Time    `json:"next_retry,omitempty"`
}

// RunSummary aggregates all per-site results for one orchestrator run.
type RunSummary struct {
	RunID         string           `json:"run_id"`
	StartedAt     time.Time        `json:"started_at"`
	Elapsed       time.Duration    `json:"elapsed"`
	Results       []ScrapingResult `json:"results"`
	VehiclesFound int              `json:"vehicles_found"`
	Successes     int              `json:"successes"`
	Blocks        int              `json:"blocks"`
	Failures      int              `json:"failures"`
}

// SummaryMeta carries fetch-context metadata for an ExtractionSummary.
type SummaryMeta struct {
	UserAgent string   `json:"user_agent,omitempty"`
	Viewport  string   `json:"viewport,omitempty"`
	Network   string   `json:"network,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ExtractionSummary is the per-page artifact downstream consumers depend on.
type ExtractionSummary struct {
	URL              string            `json:"url"`
	SiteID           string            `json:"site_id"`
	Timestamp        time.Time         `json:"timestamp"`
	SuccessfulFields int               `json:"successful_fields"`
	FailedFields     int               `json:"failed_fields"`
	TotalCost        int               `json:"total_cost"`
	RenderMode       string            `json:"render_mode"`
	Elapsed          time.Duration     `json:"elapsed"`
	Fields           []FieldExtraction `json:"fields"`
	Meta             SummaryMeta       `json:"meta"`
}
