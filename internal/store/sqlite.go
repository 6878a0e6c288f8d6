package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS public_listings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash TEXT NOT NULL UNIQUE,
	source_site  TEXT NOT NULL,
	listing_url  TEXT NOT NULL UNIQUE,
	auction_end  TEXT,
	year         INTEGER,
	make         TEXT,
	model        TEXT,
	trim         TEXT,
	mileage      INTEGER,
	current_bid  REAL,
	location     TEXT,
	state        TEXT,
	vin          TEXT,
	title        TEXT,
	condition    TEXT,
	photo_url    TEXT,
	description  TEXT,
	scraped_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_pages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	url           TEXT NOT NULL,
	site_id       TEXT NOT NULL,
	body          TEXT NOT NULL,
	status_code   INTEGER NOT NULL,
	content_hash  TEXT,
	etag          TEXT,
	last_modified TEXT,
	render_mode   TEXT NOT NULL,
	proxy_addr    TEXT,
	fetched_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	field_name  TEXT NOT NULL,
	extraction  TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_listings_source_site ON public_listings(source_site);
CREATE INDEX IF NOT EXISTS idx_listings_vin ON public_listings(vin);
CREATE INDEX IF NOT EXISTS idx_raw_pages_site ON raw_pages(site_id);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON field_provenance(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertListing inserts a listing or, when the content hash already exists,
// refreshes metadata only (scraped_at, updated_at).
func (s *SQLiteStore) UpsertListing(ctx context.Context, l model.Listing) error {
	if l.ContentHash == "" {
		return eris.New("sqlite: listing has no content hash")
	}
	scrapedAt := l.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO public_listings (
			content_hash, source_site, listing_url, auction_end, year, make,
			model, trim, mileage, current_bid, location, state, vin, title,
			condition, photo_url, description, scraped_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(content_hash) DO UPDATE SET
			scraped_at = excluded.scraped_at,
			updated_at = datetime('now')
		ON CONFLICT(listing_url) DO UPDATE SET
			content_hash = excluded.content_hash,
			auction_end  = excluded.auction_end,
			year         = excluded.year,
			make         = excluded.make,
			model        = excluded.model,
			trim         = excluded.trim,
			mileage      = excluded.mileage,
			current_bid  = excluded.current_bid,
			location     = excluded.location,
			state        = excluded.state,
			vin          = excluded.vin,
			title        = excluded.title,
			condition    = excluded.condition,
			photo_url    = excluded.photo_url,
			description  = excluded.description,
			scraped_at   = excluded.scraped_at,
			updated_at   = datetime('now')`,
		l.ContentHash, l.SourceSite, l.ListingURL, l.AuctionEnd, l.Year, l.Make,
		l.Model, l.Trim, l.Mileage, l.CurrentBid, l.Location, l.State, l.VIN,
		l.Title, l.Condition, l.PhotoURL, l.Description, scrapedAt,
	)
	return eris.Wrap(err, "sqlite: upsert listing")
}

func (s *SQLiteStore) ExistsByHash(ctx context.Context, contentHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM public_listings WHERE content_hash = ?`, contentHash,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: exists by hash")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	query := `SELECT id, content_hash, source_site, listing_url, auction_end, year,
		make, model, trim, mileage, current_bid, location, state, vin, title,
		condition, photo_url, description, scraped_at
		FROM public_listings WHERE 1=1`
	var args []any
	if filter.SourceSite != "" {
		query += ` AND source_site = ?`
		args = append(args, filter.SourceSite)
	}
	if filter.Make != "" {
		query += ` AND make = ?`
		args = append(args, filter.Make)
	}
	query += ` ORDER BY scraped_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var l model.Listing
		if err := rows.Scan(
			&l.ID, &l.ContentHash, &l.SourceSite, &l.ListingURL, &l.AuctionEnd,
			&l.Year, &l.Make, &l.Model, &l.Trim, &l.Mileage, &l.CurrentBid,
			&l.Location, &l.State, &l.VIN, &l.Title, &l.Condition, &l.PhotoURL,
			&l.Description, &l.ScrapedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) SaveRawPage(ctx context.Context, p model.RawPage) error {
	fetchedAt := p.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_pages (url, site_id, body, status_code, content_hash, etag, last_modified, render_mode, proxy_addr, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.URL, p.SiteID, p.Body, p.StatusCode, p.ContentHash, p.ETag, p.LastModified, p.RenderMode, p.ProxyAddr, fetchedAt,
	)
	return eris.Wrap(err, "sqlite: save raw page")
}

// LatestRawPage returns the newest stored fetch of url for the site, nil when
// the page has never been fetched.
func (s *SQLiteStore) LatestRawPage(ctx context.Context, siteID, url string) (*model.RawPage, error) {
	var p model.RawPage
	err := s.db.QueryRowContext(ctx, `
		SELECT url, site_id, body, status_code, content_hash, etag, last_modified, render_mode, proxy_addr, fetched_at
		FROM raw_pages WHERE site_id = ? AND url = ?
		ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		siteID, url,
	).Scan(&p.URL, &p.SiteID, &p.Body, &p.StatusCode, &p.ContentHash, &p.ETag, &p.LastModified, &p.RenderMode, &p.ProxyAddr, &p.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest raw page")
	}
	return &p, nil
}

func (s *SQLiteStore) SaveProvenance(ctx context.Context, runID string, f model.FieldExtraction) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provenance")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_provenance (run_id, field_name, extraction) VALUES (?, ?, ?)`,
		runID, f.FieldName, string(payload),
	)
	return eris.Wrap(err, "sqlite: save provenance")
}
