package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/siteharvest/internal/extract"
)

const testSitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/about</loc><priority>0.9</priority><lastmod>2026-01-15</lastmod></url>
  <url><loc>%s/products</loc></url>
  <url><loc>%s/</loc><priority>1.0</priority></url>
</urlset>`

const testHomepage = `<html><head><title>Acme</title></head><body>
<nav><a href="/about">About</a></nav>
<main><p>Welcome to Acme.</p></main>
<footer>
  <a href="/team">Team</a>
  <a href="/contact">Contact</a>
  <a href="/about#history">History</a>
  <a href="https://twitter.com/acme">Twitter</a>
  <a href="mailto:hi@acme.test">Email</a>
  <a href="/brochure.pdf">Brochure</a>
</footer>
</body></html>`

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, testSitemap, srv.URL, srv.URL, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/about", "/products", "/team", "/contact":
			w.Header().Set("Content-Type", "text/html")
			if r.URL.Path == "/" {
				_, _ = w.Write([]byte(testHomepage))
				return
			}
			_, _ = w.Write([]byte("<html><body>page</body></html>"))
		default:
			http.NotFound(w, r)
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestCoordinator(srv *httptest.Server) *Coordinator {
	return New(Config{MaxURLs: 50}, srv.Client(), nil)
}

func TestDiscoverMergesSitemapAndHomepage(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	c := newTestCoordinator(srv)

	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	// Three sitemap entries plus two footer-only pages; /about appears in
	// both sources and must surface once.
	require.Len(t, urls, 5)

	seen := make(map[string]int)
	for _, u := range urls {
		normalized, err := extract.NormalizeURL(u.URL)
		require.NoError(t, err)
		seen[normalized]++
	}
	for normalized, count := range seen {
		assert.Equal(t, 1, count, "duplicate candidate %s", normalized)
	}
}

func TestDiscoverFirstSourceWins(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	c := newTestCoordinator(srv)

	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	var about *extract.DiscoveredURL
	for i := range urls {
		if urls[i].URL == srv.URL+"/about" {
			about = &urls[i]
		}
	}
	require.NotNil(t, about)
	assert.Equal(t, extract.SourceSitemap, about.Source, "sitemap sees /about before the homepage crawl")
	assert.InDelta(t, 0.9, about.Priority, 1e-9)
	require.NotNil(t, about.LastMod)
}

func TestDiscoverSortsByPriority(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	c := newTestCoordinator(srv)

	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotEmpty(t, urls)

	for i := 1; i < len(urls); i++ {
		assert.GreaterOrEqual(t, urls[i-1].Priority, urls[i].Priority)
	}
	assert.Equal(t, srv.URL+"/", urls[0].URL, "homepage ranks first")
}

func TestDiscoverDropsUnreachable(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, testSitemap, srv.URL, srv.URL, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/about":
			_, _ = w.Write([]byte(testHomepage))
		default:
			http.NotFound(w, r)
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(srv)
	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)

	for _, u := range urls {
		assert.NotEqual(t, srv.URL+"/products", u.URL, "404 pages are filtered by the reachability check")
	}
}

func TestDiscoverSurvivesMissingSitemap(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/team", "/contact":
			_, _ = w.Write([]byte(testHomepage))
		default:
			http.NotFound(w, r)
		}
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := newTestCoordinator(srv)
	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, urls, "homepage crawl still yields candidates without a sitemap")
}

func TestDiscoverRespectsMaxURLs(t *testing.T) {
	t.Parallel()

	srv := newSiteServer(t)
	c := New(Config{MaxURLs: 2}, srv.Client(), nil)

	urls, err := c.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Equal(t, srv.URL+"/", urls[0].URL, "the cap keeps the highest priority candidates")
}
