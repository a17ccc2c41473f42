package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/extract"
)

// contentSections are blog-like index pages worth crawling for sub-links.
var contentSections = []string{
	"/blog",
	"/news",
	"/resources",
	"/insights",
	"/articles",
}

// fromBlog crawls up to Config.BlogSectionLimit content sections that are
// already known candidates (or resolve directly) and collects their
// article links.
func (c *Coordinator) fromBlog(ctx context.Context, base string, set *urlSet) error {
	crawled := 0
	var lastErr error
	for _, section := range contentSections {
		if crawled >= c.cfg.BlogSectionLimit {
			break
		}
		sectionURL := base + section
		doc, err := c.getDocument(ctx, sectionURL)
		if err != nil {
			lastErr = err
			continue
		}
		crawled++
		c.collectSectionLinks(doc, sectionURL, section, set)
	}
	if crawled == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (c *Coordinator) collectSectionLinks(doc *goquery.Document, sectionURL, section string, set *urlSet) {
	baseURL, err := url.Parse(sectionURL)
	if err != nil {
		return
	}
	added := 0
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		resolved, ok := resolveLink(baseURL, href)
		if !ok {
			return
		}
		u, err := url.Parse(resolved)
		if err != nil {
			return
		}
		// Only keep links beneath the section so a blog index cannot
		// re-import the whole site.
		if !strings.HasPrefix(strings.ToLower(u.Path), section+"/") {
			return
		}
		if set.Add(extract.DiscoveredURL{
			URL:      resolved,
			Title:    strings.TrimSpace(sel.Text()),
			Priority: 0.6,
			Source:   extract.SourceBlog,
		}) {
			added++
		}
	})
	if added > 0 {
		c.logger.Debug("content section crawled", zap.String("section", section), zap.Int("links", added))
	}
}
