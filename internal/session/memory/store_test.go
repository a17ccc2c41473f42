package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
)

func newSession() session.Session {
	return session.Session{
		ID:        uuid.New(),
		Domain:    "acme.test",
		Status:    session.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	store := New()
	sess := newSession()
	require.NoError(t, store.Create(context.Background(), sess))

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Domain, got.Domain)
	assert.Equal(t, session.StatusPending, got.Status)
}

func TestCreateDuplicateFails(t *testing.T) {
	t.Parallel()

	store := New()
	sess := newSession()
	require.NoError(t, store.Create(context.Background(), sess))
	assert.Error(t, store.Create(context.Background(), sess))
}

func TestGetUnknownID(t *testing.T) {
	t.Parallel()

	store := New()
	_, err := store.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestUpsertURLs(t *testing.T) {
	t.Parallel()

	store := New()
	sess := newSession()
	require.NoError(t, store.Create(context.Background(), sess))

	urls := []extract.DiscoveredURL{{URL: "https://acme.test/about", Priority: 0.8}}
	require.NoError(t, store.UpsertURLs(context.Background(), sess.ID, urls))

	// The store keeps its own copy.
	urls[0].URL = "mutated"
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.URLs, 1)
	assert.Equal(t, "https://acme.test/about", got.URLs[0].URL)

	assert.ErrorIs(t, store.UpsertURLs(context.Background(), uuid.New(), urls), session.ErrNotFound)
}

func TestUpsertDatasetAndStatus(t *testing.T) {
	t.Parallel()

	store := New()
	sess := newSession()
	require.NoError(t, store.Create(context.Background(), sess))

	dataset := extract.AggregatedDataset{Metadata: extract.DatasetMetadata{Domain: "acme.test"}}
	require.NoError(t, store.UpsertDataset(context.Background(), sess.ID, dataset))
	require.NoError(t, store.SetStatus(context.Background(), sess.ID, session.StatusComplete, ""))

	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Dataset)
	assert.Equal(t, "acme.test", got.Dataset.Metadata.Domain)
	assert.Equal(t, session.StatusComplete, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSetStatusRecordsError(t *testing.T) {
	t.Parallel()

	store := New()
	sess := newSession()
	require.NoError(t, store.Create(context.Background(), sess))

	require.NoError(t, store.SetStatus(context.Background(), sess.ID, session.StatusFailed, "discovery produced no urls"))
	got, err := store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, got.Status)
	assert.Equal(t, "discovery produced no urls", got.ErrorText)
}
