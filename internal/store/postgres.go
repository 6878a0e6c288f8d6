package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS public_listings (
	id           BIGSERIAL PRIMARY KEY,
	content_hash TEXT NOT NULL UNIQUE,
	source_site  TEXT NOT NULL,
	listing_url  TEXT NOT NULL UNIQUE,
	auction_end  TEXT,
	year         INT,
	make         TEXT,
	model        TEXT,
	trim         TEXT,
	mileage      INT,
	current_bid  DOUBLE PRECISION,
	location     TEXT,
	state        TEXT,
	vin          TEXT,
	title        TEXT,
	condition    TEXT,
	photo_url    TEXT,
	description  TEXT,
	scraped_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_pages (
	id            BIGSERIAL PRIMARY KEY,
	url           TEXT NOT NULL,
	site_id       TEXT NOT NULL,
	body          TEXT NOT NULL,
	status_code   INT NOT NULL,
	content_hash  TEXT,
	etag          TEXT,
	last_modified TEXT,
	render_mode   TEXT NOT NULL,
	proxy_addr    TEXT,
	fetched_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS field_provenance (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	field_name TEXT NOT NULL,
	extraction JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_source_site ON public_listings(source_site);
CREATE INDEX IF NOT EXISTS idx_listings_vin ON public_listings(vin);
CREATE INDEX IF NOT EXISTS idx_raw_pages_site ON raw_pages(site_id);
CREATE INDEX IF NOT EXISTS idx_provenance_run ON field_provenance(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l model.Listing) error {
	if l.ContentHash == "" {
		return eris.New("postgres: listing has no content hash")
	}
	scrapedAt := l.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	// A re-scraped URL whose content changed carries a new hash; the stale
	// row would trip the listing_url unique constraint, so drop it first.
	if _, err := s.pool.Exec(ctx, `
		DELETE FROM public_listings WHERE listing_url = $1 AND content_hash <> $2`,
		l.ListingURL, l.ContentHash,
	); err != nil {
		return eris.Wrap(err, "postgres: supersede listing")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO public_listings (
			content_hash, source_site, listing_url, auction_end, year, make,
			model, trim, mileage, current_bid, location, state, vin, title,
			condition, photo_url, description, scraped_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now())
		ON CONFLICT (content_hash) DO UPDATE SET
			scraped_at = EXCLUDED.scraped_at,
			updated_at = now()`,
		l.ContentHash, l.SourceSite, l.ListingURL, l.AuctionEnd, l.Year, l.Make,
		l.Model, l.Trim, l.Mileage, l.CurrentBid, l.Location, l.State, l.VIN,
		l.Title, l.Condition, l.PhotoURL, l.Description, scrapedAt,
	)
	return eris.Wrap(err, "postgres: upsert listing")
}

func (s *PostgresStore) ExistsByHash(ctx context.Context, contentHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM public_listings WHERE content_hash = $1)`, contentHash,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: exists by hash")
	}
	return exists, nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	query := `SELECT id, content_hash, source_site, listing_url, auction_end, year,
		make, model, trim, mileage, current_bid, location, state, vin, title,
		condition, photo_url, description, scraped_at
		FROM public_listings WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.SourceSite != "" {
		query += ` AND source_site = ` + arg(filter.SourceSite)
	}
	if filter.Make != "" {
		query += ` AND make = ` + arg(filter.Make)
	}
	query += ` ORDER BY scraped_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ` + arg(filter.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
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
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) SaveRawPage(ctx context.Context, p model.RawPage) error {
	fetchedAt := p.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_pages (url, site_id, body, status_code, content_hash, etag, last_modified, render_mode, proxy_addr, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.URL, p.SiteID, p.Body, p.StatusCode, p.ContentHash, p.ETag, p.LastModified, p.RenderMode, p.ProxyAddr, fetchedAt,
	)
	return eris.Wrap(err, "postgres: save raw page")
}

func (s *PostgresStore) LatestRawPage(ctx context.Context, siteID, url string) (*model.RawPage, error) {
	var p model.RawPage
	err := s.pool.QueryRow(ctx, `
		SELECT url, site_id, body, status_code, content_hash, etag, last_modified, render_mode, proxy_addr, fetched_at
		FROM raw_pages WHERE site_id = $1 AND url = $2
		ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		siteID, url,
	).Scan(&p.URL, &p.SiteID, &p.Body, &p.StatusCode, &p.ContentHash, &p.ETag, &p.LastModified, &p.RenderMode, &p.ProxyAddr, &p.FetchedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest raw page")
	}
	return &p, nil
}

func (s *PostgresStore) SaveProvenance(ctx context.Context, runID string, f model.FieldExtraction) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO field_provenance (run_id, field_name, extraction) VALUES ($1, $2, $3)`,
		runID, f.FieldName, payload,
	)
	return eris.Wrap(err, "postgres: save provenance")
}
