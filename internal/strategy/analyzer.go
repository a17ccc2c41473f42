package strategy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/extract"
)

// HTTPAnalyzer sniffs a site's technology from its homepage markup. It is
// deliberately rule-based: a generator meta tag or a well-known framework
// marker is enough, and anything ambiguous stays empty so Select routes it
// to the heavier strategy.
type HTTPAnalyzer struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPAnalyzer builds an analyzer sharing the given HTTP client.
func NewHTTPAnalyzer(client *http.Client, userAgent string, logger *zap.Logger) *HTTPAnalyzer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAnalyzer{client: client, userAgent: userAgent, logger: logger}
}

// markerChecks map a substring of the raw homepage HTML to a technology
// label. Checked in order after the generator meta tag.
var markerChecks = []struct {
	marker string
	tech   string
}{
	{"__next", "next"},
	{"data-reactroot", "react"},
	{"ng-version", "angular"},
	{"data-v-app", "vue"},
	{"___gatsby", "gatsby"},
	{"__nuxt", "nuxt"},
	{"wp-content", "wordpress"},
	{"cdn.shopify.com", "shopify"},
	{"static1.squarespace.com", "squarespace"},
}

// Analyze fetches the homepage and returns detected site metadata.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, domain string) (extract.SiteMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, extract.DomainURL(domain), nil)
	if err != nil {
		return extract.SiteMetadata{}, fmt.Errorf("build request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return extract.SiteMetadata{}, fmt.Errorf("fetch homepage: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return extract.SiteMetadata{}, fmt.Errorf("homepage returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return extract.SiteMetadata{}, fmt.Errorf("parse homepage: %w", err)
	}

	meta := extract.SiteMetadata{Technology: detectTechnology(doc)}
	a.logger.Debug("site analyzed",
		zap.String("domain", domain),
		zap.String("technology", meta.Technology),
	)
	return meta, nil
}

func detectTechnology(doc *goquery.Document) string {
	if gen, ok := doc.Find(`meta[name="generator"]`).Attr("content"); ok {
		if tech := normalizeGenerator(gen); tech != "" {
			return tech
		}
	}
	html, err := doc.Html()
	if err != nil {
		return ""
	}
	for _, check := range markerChecks {
		if strings.Contains(html, check.marker) {
			return check.tech
		}
	}
	return ""
}

// normalizeGenerator reduces a generator tag like "WordPress 6.4.1" to the
// label the selector keys on.
func normalizeGenerator(gen string) string {
	lower := strings.ToLower(gen)
	known := []string{
		"wordpress", "drupal", "joomla", "hugo", "jekyll", "eleventy",
		"squarespace", "ghost", "shopify", "gatsby", "next", "nuxt",
	}
	for _, tech := range known {
		if strings.Contains(lower, tech) {
			return tech
		}
	}
	return ""
}
