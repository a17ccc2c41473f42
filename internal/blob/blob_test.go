package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		pageURL string
		want    string
	}{
		{"homepage", "https://acme.test/", "sid/acme.test_root.html"},
		{"nested path", "https://acme.test/about/team", "sid/acme.test_about_team.html"},
		{"query stripped", "https://acme.test/products?ref=nav", "sid/acme.test_products.html"},
		{"unparseable", "http://bad url", "sid/http_bad_url.html"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SnapshotPath("sid", tc.pageURL))
		})
	}
}

func TestDiscardDropsData(t *testing.T) {
	t.Parallel()

	uri, err := Discard{}.Put(context.Background(), "sid/page.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Empty(t, uri)
}
