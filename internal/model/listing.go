// Package model defines the shared record shapes for the acquisition pipeline.
package model

import "time"

// Listing is a normalized vehicle listing produced by the pipeline.
// Field set mirrors the public_listings table.
type Listing struct {
	ID          int64     `json:"id,omitempty"`
	SourceSite  string    `json:"source_site"`
	ListingURL  string    `json:"listing_url"`
	AuctionEnd  string    `json:"auction_end,omitempty"`
	Year        int       `json:"year,omitempty"`
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	Trim        string    `json:"trim,omitempty"`
	Mileage     int       `json:"mileage,omitempty"`
	CurrentBid  float64   `json:"current_bid,omitempty"`
	Location    string    `json:"location,omitempty"`
	State       string    `json:"state,omitempty"`
	VIN         string    `json:"vin,omitempty"`
	Title       string    `json:"title,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Description string    `json:"description,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	ScrapedAt   time.Time `json:"scraped_at,omitempty"`
}

// RawPage is a fetched page plus the metadata needed for conditional re-fetch.
type RawPage struct {
	URL          string    `json:"url"`
	SiteID       string    `json:"site_id"`
	Body         string    `json:"body"`
	StatusCode   int       `json:"status_code"`
	ContentHash  string    `json:"content_hash,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	RenderMode   string    `json:"render_mode"` // "http" or "headless"
	ProxyAddr    string    `json:"proxy_addr,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}
