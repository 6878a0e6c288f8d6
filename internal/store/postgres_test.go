package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilsonandrew-hub/dealscan-insight-sub000/internal/model"
)

// anyArgs returns n pgxmock.AnyArg matchers for statements whose argument
// values are not under test; pgxmock requires the declared argument count to
// match the actual call.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_UpsertListing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	l := testListing()
	mock.ExpectExec(`DELETE FROM public_listings`).
		WithArgs(l.ListingURL, l.ContentHash).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO public_listings`).
		WithArgs(anyArgs(18)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertListing(context.Background(), l)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSameURLNewHash(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// A changed page carries a new hash for the same listing URL. The stale
	// row goes first so the listing_url unique constraint cannot fire.
	l := testListing()
	l.ContentHash = "def456hash"
	l.CurrentBid = 13000
	mock.ExpectExec(`DELETE FROM public_listings`).
		WithArgs(l.ListingURL, "def456hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO public_listings`).
		WithArgs(anyArgs(18)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertListing(context.Background(), l)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertListing_MissingHash(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	l := testListing()
	l.ContentHash = ""
	err := s.UpsertListing(context.Background(), l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content hash")
}

func TestPostgresStore_ExistsByHash(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc123hash").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := s.ExistsByHash(context.Background(), "abc123hash")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProvenance(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO field_provenance`).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveProvenance(context.Background(), "run-1", model.FieldExtraction{
		FieldName: "vin",
		Value:     "1FTFW1ET5DFC10312",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRawPage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	fetched := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"url", "site_id", "body", "status_code", "content_hash",
		"etag", "last_modified", "render_mode", "proxy_addr", "fetched_at",
	}).AddRow("https://govdeals.com/search", "govdeals", "<html></html>", 200, "h1",
		`"v2"`, "Mon, 24 Aug 2026 12:00:00 GMT", "http", "", fetched)

	mock.ExpectQuery(`FROM raw_pages`).
		WithArgs("govdeals", "https://govdeals.com/search").
		WillReturnRows(rows)

	p, err := s.LatestRawPage(context.Background(), "govdeals", "https://govdeals.com/search")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, `"v2"`, p.ETag)
	assert.Equal(t, "Mon, 24 Aug 2026 12:00:00 GMT", p.LastModified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRawPage_NoRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM raw_pages`).
		WithArgs("govdeals", "https://govdeals.com/search").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.LatestRawPage(context.Background(), "govdeals", "https://govdeals.com/search")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS public_listings`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
