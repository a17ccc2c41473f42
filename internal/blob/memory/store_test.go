package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	t.Parallel()

	store := New()
	data := []byte("<html>snapshot</html>")
	uri, err := store.Put(context.Background(), "sid/acme.test_root.html", "text/html", data)
	require.NoError(t, err)
	assert.Equal(t, "memory://sid/acme.test_root.html", uri)

	// Mutating the caller's slice must not reach the store.
	data[0] = 'X'
	got, ok := store.Get("sid/acme.test_root.html")
	require.True(t, ok)
	assert.Equal(t, "<html>snapshot</html>", string(got))
	assert.Equal(t, 1, store.Len())
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	store := New()
	_, ok := store.Get("nope")
	assert.False(t, ok)
}
