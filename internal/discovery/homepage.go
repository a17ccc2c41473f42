package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brandforge/siteharvest/internal/extract"
)

// pageRegion scopes link extraction to one part of the homepage. Footers are
// weighted highest: they routinely carry pages missing from both the nav and
// the sitemap.
type pageRegion struct {
	name     string
	selector string
	bonus    float64
}

var homepageRegions = []pageRegion{
	{name: "footer", selector: "footer a[href], [class*='footer'] a[href]", bonus: 0.15},
	{name: "nav", selector: "nav a[href], [role='navigation'] a[href]", bonus: 0.1},
	{name: "header", selector: "header a[href]", bonus: 0.05},
	{name: "body", selector: "body a[href]", bonus: 0},
}

var socialHosts = []string{
	"facebook.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"linkedin.com",
	"youtube.com",
	"tiktok.com",
	"pinterest.com",
	"threads.net",
}

var binaryExtensions = []string{
	".pdf", ".zip", ".gz", ".tar", ".rar",
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".ico",
	".mp3", ".mp4", ".mov", ".avi", ".webm",
	".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".css", ".js", ".json", ".xml", ".rss",
}

// fromHomepage fetches the homepage and extracts links region by region,
// assigning heuristic priorities and filtering non-page targets.
func (c *Coordinator) fromHomepage(ctx context.Context, base string, set *urlSet) error {
	doc, err := c.getDocument(ctx, base)
	if err != nil {
		return err
	}

	set.Add(extract.DiscoveredURL{
		URL:      base,
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Priority: 1.0,
		Source:   extract.SourceHomepage,
	})

	baseURL, err := url.Parse(base)
	if err != nil {
		return err
	}

	for _, region := range homepageRegions {
		doc.Find(region.selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok {
				return
			}
			resolved, ok := resolveLink(baseURL, href)
			if !ok {
				return
			}
			priority := pathPriority(resolved) + region.bonus
			if priority > 0.95 {
				priority = 0.95
			}
			set.Add(extract.DiscoveredURL{
				URL:      resolved,
				Title:    strings.TrimSpace(sel.Text()),
				Priority: priority,
				Source:   extract.SourceHomepage,
			})
		})
	}
	return nil
}

// resolveLink normalizes an anchor href against the page URL, dropping
// anchors, non-HTTP schemes, social hosts, and binary targets.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(resolved.Hostname()), "www.")
	for _, social := range socialHosts {
		if host == social || strings.HasSuffix(host, "."+social) {
			return "", false
		}
	}
	path := strings.ToLower(resolved.Path)
	for _, ext := range binaryExtensions {
		if strings.HasSuffix(path, ext) {
			return "", false
		}
	}
	return resolved.String(), true
}

// pathPriority assigns the heuristic priority for a page path: the homepage
// ranks 1.0, key company pages 0.8, content sections 0.6, everything else 0.5.
func pathPriority(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0.5
	}
	path := strings.ToLower(strings.Trim(u.Path, "/"))
	switch {
	case path == "":
		return 1.0
	case containsAny(path, "about", "contact", "service", "team", "product"):
		return 0.8
	case containsAny(path, "blog", "news", "article", "insight", "resource"):
		return 0.6
	default:
		return 0.5
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
