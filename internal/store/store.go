// Package store persists normalized listings, raw pages, and field provenance.
package store

import (
	"context"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// ListingFilter specifies criteria for listing queries.
type ListingFilter struct {
	SourceSite string `json:"source_site,omitempty"`
	Make       string `json:"make,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the acquisition pipeline.
// UpsertListing is idempotent on content hash: re-upserting the same hash
// refreshes metadata only.
type Store interface {
	UpsertListing(ctx context.Context, l model.Listing) error
	ExistsByHash(ctx context.Context, contentHash string) (bool, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error)

	SaveRawPage(ctx context.Context, p model.RawPage) error
	// LatestRawPage returns the most recent stored fetch of url for the site,
	// or nil when none exists. Its validators seed conditional requests.
	LatestRawPage(ctx context.Context, siteID, url string) (*model.RawPage, error)
	SaveProvenance(ctx context.Context, runID string, f model.FieldExtraction) error

	Migrate(ctx context.Context) error
	Close() error
}
