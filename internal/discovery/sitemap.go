package discovery

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/extract"
)

const (
	sitemapMaxDepth   = 3
	sitemapMaxEntries = 2000
)

type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// fromSitemaps tries the conventional sitemap locations plus any sitemap
// declared in robots.txt, resolving sitemap indexes recursively. Every
// location is attempted; a miss on one never short-circuits the rest.
func (c *Coordinator) fromSitemaps(ctx context.Context, base string, set *urlSet) error {
	locations := []string{
		base + "/sitemap.xml",
		base + "/sitemap_index.xml",
	}
	locations = append(locations, c.robotsSitemaps(ctx, base)...)

	var lastErr error
	found := 0
	seen := make(map[string]struct{})
	for _, loc := range locations {
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		n, err := c.resolveSitemap(ctx, loc, set, 0)
		if err != nil {
			lastErr = err
			c.logger.Debug("sitemap location miss", zap.String("location", loc), zap.Error(err))
			continue
		}
		found += n
	}
	if found == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// resolveSitemap fetches one sitemap document, recursing into index files.
func (c *Coordinator) resolveSitemap(ctx context.Context, loc string, set *urlSet, depth int) (int, error) {
	if depth > sitemapMaxDepth {
		return 0, fmt.Errorf("sitemap nesting exceeds depth %d at %s", sitemapMaxDepth, loc)
	}
	body, status, err := c.get(ctx, loc)
	if err != nil {
		return 0, err
	}
	if status >= 400 {
		return 0, fmt.Errorf("sitemap %s: status %d", loc, status)
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		total := 0
		for _, child := range index.Sitemaps {
			childLoc := strings.TrimSpace(child.Loc)
			if childLoc == "" {
				continue
			}
			n, childErr := c.resolveSitemap(ctx, childLoc, set, depth+1)
			if childErr != nil {
				c.logger.Debug("nested sitemap failed", zap.String("location", childLoc), zap.Error(childErr))
				continue
			}
			total += n
			if total >= sitemapMaxEntries {
				break
			}
		}
		return total, nil
	}

	var urls sitemapURLSet
	if err := xml.Unmarshal(body, &urls); err != nil {
		return 0, fmt.Errorf("parse sitemap %s: %w", loc, err)
	}

	added := 0
	for _, entry := range urls.URLs {
		rawLoc := strings.TrimSpace(entry.Loc)
		if rawLoc == "" {
			continue
		}
		d := extract.DiscoveredURL{
			URL:        rawLoc,
			Priority:   parseSitemapPriority(entry.Priority),
			Source:     extract.SourceSitemap,
			ChangeFreq: strings.TrimSpace(entry.ChangeFreq),
		}
		if lastMod := parseSitemapTime(entry.LastMod); lastMod != nil {
			d.LastMod = lastMod
		}
		if set.Add(d) {
			added++
		}
		if added >= sitemapMaxEntries {
			break
		}
	}
	return added, nil
}

// robotsSitemaps collects Sitemap: declarations from robots.txt.
func (c *Coordinator) robotsSitemaps(ctx context.Context, base string) []string {
	body, status, err := c.get(ctx, base+"/robots.txt")
	if err != nil || status >= 400 {
		return nil
	}
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			continue
		}
		loc := strings.TrimSpace(line[len("sitemap:"):])
		if loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

func parseSitemapPriority(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0.5
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil || p < 0 || p > 1 {
		return 0.5
	}
	return p
}

func parseSitemapTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
