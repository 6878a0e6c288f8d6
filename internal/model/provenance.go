package model

import "time"

// Lineage identifies where and when a field value was obtained.
type Lineage struct {
	SourceURL        string    `json:"source_url"`
	Timestamp        time.Time `json:"timestamp"`
	ExtractorVersion string    `json:"extractor_version"`
}

// Provenance records how a single field's value was obtained.
type Provenance struct {
	FieldName     string  `json:"field_name"`
	Strategy      string  `json:"strategy"`
	Confidence    float64 `json:"confidence"`
	Locator       string  `json:"locator"` // CSS selector path or model id+version
	ValidatorPass bool    `json:"validator_pass"`
	RenderMode    string  `json:"render_mode"` // "http" or "headless"
	ClusterID     string  `json:"cluster_id,omitempty"`
	RetryCount    int     `json:"retry_count"`
	Lineage       Lineage `json:"lineage"`
	CostBand      string  `json:"cost_band"`
	UnitsConsumed int     `json:"units_consumed"`
}

// FieldExtraction is the accepted (or best-effort failed) result for one field.
type FieldExtraction struct {
	FieldName        string     `json:"field_name"`
	Value            string     `json:"value"`
	Confidence       float64    `json:"confidence"`
	StrategyUsed     string     `json:"strategy_used"`
	Valid            bool       `json:"valid"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	Provenance       Provenance `json:"provenance"`
	FallbackAttempts int        `json:"fallback_attempts"`
	TotalCost        int        `json:"total_cost"`
}
