package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesBaseDir(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "snapshots")
	_, err := New(base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewRejectsEmptyBase(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	assert.Error(t, err)
}

func TestPutWritesFileURI(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	store, err := New(base)
	require.NoError(t, err)

	uri, err := store.Put(context.Background(), "sid/acme.test_root.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestPutRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape.html", "text/html", []byte("x"))
	assert.Error(t, err)
}

func TestPutRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), " ", "text/html", []byte("x"))
	assert.Error(t, err)
}
