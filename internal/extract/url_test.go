package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/About", "https://example.com/About"},
		{"strips default https port", "https://example.com:443/", "https://example.com/"},
		{"strips default http port", "http://example.com:80/x", "http://example.com/x"},
		{"drops fragment", "https://example.com/page#section", "https://example.com/page"},
		{"trims trailing slash on non-root", "https://example.com/about/", "https://example.com/about"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"adds root path", "https://example.com", "https://example.com/"},
		{"sorts query params", "https://example.com/p?b=2&a=1", "https://example.com/p?a=1&b=2"},
		{"defaults to https scheme", "//example.com/about", "https://example.com/about"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLEquivalents(t *testing.T) {
	t.Parallel()

	a, err := NormalizeURL("https://example.com/about/")
	require.NoError(t, err)
	b, err := NormalizeURL("HTTPS://EXAMPLE.COM:443/about#team")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	assert.True(t, SameHost("https://example.com/a", "https://www.example.com/b"))
	assert.True(t, SameHost("https://WWW.Example.com", "https://example.com"))
	assert.False(t, SameHost("https://example.com", "https://other.com"))
}

func TestDomainURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com", DomainURL("example.com"))
	assert.Equal(t, "https://example.com", DomainURL("example.com/"))
	assert.Equal(t, "http://example.com", DomainURL("http://example.com/"))
}
