package scrape

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/canonical"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/extract"
	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// SplitListings splits a search-results page into one sub-page per listing
// row using the site's row selector. Each sub-page runs through the
// extraction cascade independently.
func SplitListings(page *extract.Page, rowSelector string) ([]*extract.Page, error) {
	if rowSelector == "" {
		return []*extract.Page{page}, nil
	}
	doc, err := page.Doc()
	if err != nil {
		return nil, err
	}

	var pages []*extract.Page
	var firstErr error
	doc.Find(rowSelector).Each(func(_ int, sel *goquery.Selection) {
		html, err := goquery.OuterHtml(sel)
		if err != nil {
			if firstErr == nil {
				firstErr = eris.Wrap(err, "scrape: render listing row")
			}
			return
		}
		raw := page.Raw
		raw.Body = html
		if href, ok := sel.Find("a[href]").Attr("href"); ok {
			raw.URL = resolveURL(page.Raw.URL, href)
		}
		pages = append(pages, extract.NewPage(raw))
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return pages, nil
}

func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// ListingFromSummary assembles a normalized Listing from the cascade's field
// extractions. Only valid fields are taken; the content hash is computed
// after normalization so formatting noise never produces a new identity.
func ListingFromSummary(siteID string, summary model.ExtractionSummary) model.Listing {
	l := model.Listing{
		SourceSite: siteID,
		ListingURL: summary.URL,
		ScrapedAt:  summary.Timestamp,
	}
	if l.ScrapedAt.IsZero() {
		l.ScrapedAt = time.Now().UTC()
	}

	for _, f := range summary.Fields {
		if !f.Valid || f.Value == "" {
			continue
		}
		switch f.FieldName {
		case "vin":
			l.VIN = canonical.NormalizeVIN(f.Value)
		case "year":
			if y, err := strconv.Atoi(strings.TrimSpace(f.Value)); err == nil {
				l.Year = y
			}
		case "make":
			l.Make = canonical.Canonical(f.Value)
		case "model":
			l.Model = canonical.NormalizeModel(f.Value)
		case "trim":
			l.Trim = canonical.Canonical(f.Value)
		case "mileage":
			if m, err := strconv.Atoi(canonical.NormalizeMileage(f.Value)); err == nil {
				l.Mileage = m
			}
		case "current_bid", "price":
			if b, err := strconv.ParseFloat(canonical.NormalizeAmount(f.Value), 64); err == nil {
				l.CurrentBid = b
			}
		case "auction_end":
			l.AuctionEnd = strings.TrimSpace(f.Value)
		case "location":
			l.Location = canonical.NormalizeLocation(f.Value)
		case "state":
			l.State = strings.ToUpper(strings.TrimSpace(f.Value))
		case "title":
			l.Title = strings.TrimSpace(f.Value)
		case "condition":
			l.Condition = canonical.Canonical(f.Value)
		case "photo_url":
			l.PhotoURL = strings.TrimSpace(f.Value)
		case "description":
			l.Description = strings.TrimSpace(f.Value)
		case "listing_url":
			l.ListingURL = resolveURL(summary.URL, strings.TrimSpace(f.Value))
		}
	}

	l.ContentHash = canonical.ContentHash(l)
	return l
}

// ValidateListing checks the minimum field set a listing needs before it is
// worth persisting.
func ValidateListing(l model.Listing) error {
	if l.SourceSite == "" {
		return eris.New("listing has no source site")
	}
	if l.ListingURL == "" {
		return eris.New("listing has no url")
	}
	if l.VIN == "" && l.Make == "" && l.Title == "" {
		return eris.New("listing has no identifying fields")
	}
	return nil
}
