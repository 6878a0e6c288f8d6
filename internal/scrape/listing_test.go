package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/extract"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

const resultsHTML = `<html><body>
<div class="listing">
  <a href="/listing/101">2019 Ford F-150</a>
  <span class="bid">$12,500</span>
</div>
<div class="listing">
  <a href="/listing/102">2017 Chevrolet Silverado</a>
  <span class="bid">$9,800</span>
</div>
</body></html>`

func TestSplitListings(t *testing.T) {
	page := extract.NewPage(model.RawPage{
		URL:  "https://govdeals.com/search",
		Body: resultsHTML,
	})

	rows, err := SplitListings(page, "div.listing")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0].Raw.Body, "Ford F-150")
	assert.Contains(t, rows[1].Raw.Body, "Silverado")

	// Row URLs resolve relative hrefs against the page URL.
	assert.Equal(t, "https://govdeals.com/listing/101", rows[0].Raw.URL)
	assert.Equal(t, "https://govdeals.com/listing/102", rows[1].Raw.URL)
}

func TestSplitListings_NoSelectorReturnsWholePage(t *testing.T) {
	page := extract.NewPage(model.RawPage{URL: "https://govdeals.com/listing/1", Body: "<html></html>"})
	rows, err := SplitListings(page, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Same(t, page, rows[0])
}

func TestSplitListings_NoMatches(t *testing.T) {
	page := extract.NewPage(model.RawPage{Body: "<html><body>nothing here</body></html>"})
	rows, err := SplitListings(page, "div.listing")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListingFromSummary(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	summary := model.ExtractionSummary{
		URL:       "https://govdeals.com/listing/101",
		SiteID:    "govdeals",
		Timestamp: ts,
		Fields: []model.FieldExtraction{
			{FieldName: "vin", Value: "1ftfw1et5dfc10312", Valid: true},
			{FieldName: "year", Value: "2019", Valid: true},
			{FieldName: "make", Value: " Ford ", Valid: true},
			{FieldName: "model", Value: "F-150", Valid: true},
			{FieldName: "mileage", Value: "88k", Valid: true},
			{FieldName: "current_bid", Value: "$12,500.00", Valid: true},
			{FieldName: "location", Value: "Columbus,OH", Valid: true},
			{FieldName: "state", Value: "oh", Valid: true},
			// Invalid extractions never reach the listing.
			{FieldName: "trim", Value: "??", Valid: false},
		},
	}

	l := ListingFromSummary("govdeals", summary)
	assert.Equal(t, "govdeals", l.SourceSite)
	assert.Equal(t, "https://govdeals.com/listing/101", l.ListingURL)
	assert.Equal(t, "1FTFW1ET5DFC10312", l.VIN)
	assert.Equal(t, 2019, l.Year)
	assert.Equal(t, "ford", l.Make)
	assert.Equal(t, "f-150", l.Model)
	assert.Equal(t, 88000, l.Mileage)
	assert.Equal(t, 12500.0, l.CurrentBid)
	assert.Equal(t, "OH", l.State)
	assert.Empty(t, l.Trim)
	assert.Equal(t, ts, l.ScrapedAt)
	assert.NotEmpty(t, l.ContentHash)
}

func TestValidateListing(t *testing.T) {
	ok := model.Listing{SourceSite: "govdeals", ListingURL: "https://govdeals.com/l/1", Make: "ford"}
	assert.NoError(t, ValidateListing(ok))

	byVIN := model.Listing{SourceSite: "govdeals", ListingURL: "https://govdeals.com/l/1", VIN: "1FTFW1ET5DFC10312"}
	assert.NoError(t, ValidateListing(byVIN))

	noIdentity := model.Listing{SourceSite: "govdeals", ListingURL: "https://govdeals.com/l/1"}
	assert.Error(t, ValidateListing(noIdentity))

	noURL := model.Listing{SourceSite: "govdeals", Make: "ford"}
	assert.Error(t, ValidateListing(noURL))
}

func TestListingFromSummary_HashIgnoresFormattingNoise(t *testing.T) {
	base := model.ExtractionSummary{
		URL: "https://govdeals.com/listing/101",
		Fields: []model.FieldExtraction{
			{FieldName: "make", Value: "Ford", Valid: true},
			{FieldName: "model", Value: "Mustang – GT", Valid: true},
		},
	}
	noisy := base
	noisy.Fields = []model.FieldExtraction{
		{FieldName: "make", Value: "  FORD ", Valid: true},
		{FieldName: "model", Value: "mustang - gt", Valid: true},
	}

	a := ListingFromSummary("govdeals", base)
	b := ListingFromSummary("govdeals", noisy)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}
