package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	sess := session.Session{
		ID:        uuid.New(),
		Domain:    "acme.test",
		Status:    session.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.ID, sess.Domain, "pending", pgxmock.AnyArg(), sess.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertURLsUnknownSession(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE sessions SET urls").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpsertURLs(context.Background(), id, []extract.DiscoveredURL{{URL: "https://acme.test/"}})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDataset(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE sessions SET dataset").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dataset := extract.AggregatedDataset{Metadata: extract.DatasetMetadata{Domain: "acme.test"}}
	require.NoError(t, store.UpsertDataset(context.Background(), id, dataset))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(id, "failed", "validation timed out").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetStatus(context.Background(), id, session.StatusFailed, "validation timed out"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoundTripsJSONColumns(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	id := uuid.New()
	created := time.Now().UTC().Truncate(time.Second)

	rows := pgxmock.NewRows([]string{
		"id", "domain", "status", "options", "urls", "dataset", "error_text", "created_at", "updated_at",
	}).AddRow(
		id, "acme.test", "complete",
		[]byte(`{"max_pages":10}`),
		[]byte(`[{"url":"https://acme.test/about","priority":0.8}]`),
		[]byte(`{"metadata":{"domain":"acme.test"}}`),
		"", created, created,
	)
	mock.ExpectQuery("SELECT id, domain, status").WithArgs(id).WillReturnRows(rows)

	sess, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, sess.Status)
	assert.Equal(t, 10, sess.Options.MaxPages)
	require.Len(t, sess.URLs, 1)
	assert.Equal(t, "https://acme.test/about", sess.URLs[0].URL)
	require.NotNil(t, sess.Dataset)
	assert.Equal(t, "acme.test", sess.Dataset.Metadata.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownSession(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, domain, status").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
