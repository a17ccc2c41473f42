// Package discovery finds candidate pages for a domain by combining sitemap
// parsing, a comprehensive homepage crawl, optional pattern probing, and
// blog discovery, then validates and ranks the union.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/metrics"
)

// Config controls discovery behavior.
type Config struct {
	// MaxURLs caps the final candidate count (default 200).
	MaxURLs int
	// HTTPTimeout bounds each discovery fetch (default 10s).
	HTTPTimeout time.Duration
	// UserAgent is sent on every discovery request.
	UserAgent string
	// EnablePatterns turns on conventional-path probing. Off by default:
	// guessed paths have produced phantom entries on sites that answer 200
	// for unknown URLs, so the capability is kept behind a flag and the
	// final reachability check is the safety net if it is enabled.
	EnablePatterns bool
	// ValidateConcurrency bounds parallel reachability checks (default 8).
	ValidateConcurrency int
	// BlogSectionLimit caps how many content sections are crawled for
	// sub-links (default 3).
	BlogSectionLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxURLs <= 0 {
		c.MaxURLs = 200
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.ValidateConcurrency <= 0 {
		c.ValidateConcurrency = 8
	}
	if c.BlogSectionLimit <= 0 {
		c.BlogSectionLimit = 3
	}
	return c
}

// Coordinator runs the discovery steps and unions their results. Steps are
// independent: a failing step logs and contributes nothing, it never aborts
// the coordinator.
type Coordinator struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Coordinator. A nil client gets a default with the configured
// timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{cfg: cfg, client: client, logger: logger}
}

// Discover returns the ordered, deduplicated candidate list for domain.
func (c *Coordinator) Discover(ctx context.Context, domain string) ([]extract.DiscoveredURL, error) {
	base := extract.DomainURL(domain)
	set := newURLSet(base)

	if err := c.fromSitemaps(ctx, base, set); err != nil {
		c.logger.Warn("sitemap discovery failed", zap.String("domain", domain), zap.Error(err))
	}
	// The homepage crawl always runs; sitemaps routinely omit pages that
	// only appear in the footer.
	if err := c.fromHomepage(ctx, base, set); err != nil {
		c.logger.Warn("homepage discovery failed", zap.String("domain", domain), zap.Error(err))
	}
	if c.cfg.EnablePatterns {
		c.fromPatterns(base, set)
	}
	if err := c.fromBlog(ctx, base, set); err != nil {
		c.logger.Warn("blog discovery failed", zap.String("domain", domain), zap.Error(err))
	}

	candidates := set.ordered()
	validated := c.validateReachable(ctx, candidates)

	sort.SliceStable(validated, func(i, j int) bool {
		return validated[i].Priority > validated[j].Priority
	})
	if len(validated) > c.cfg.MaxURLs {
		validated = validated[:c.cfg.MaxURLs]
	}

	metrics.ObserveDiscoveredURLs(len(validated))
	c.logger.Info("discovery finished",
		zap.String("domain", domain),
		zap.Int("candidates", len(candidates)),
		zap.Int("validated", len(validated)),
	)
	return validated, nil
}

func (c *Coordinator) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	return body, resp.StatusCode, nil
}

func (c *Coordinator) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	body, status, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("get %s: status %d", rawURL, status)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	return doc, nil
}

const maxBodyBytes = 4 << 20

// urlSet accumulates discovered URLs keyed by normalized form. Multiple
// discovery steps may append concurrently during validation, so access is
// lock-guarded. First occurrence wins; later duplicates are dropped.
type urlSet struct {
	mu    sync.Mutex
	base  string
	index map[string]struct{}
	items []extract.DiscoveredURL
}

func newURLSet(base string) *urlSet {
	return &urlSet{
		base:  base,
		index: make(map[string]struct{}),
	}
}

// Add normalizes and records d, rejecting off-host URLs and duplicates.
func (s *urlSet) Add(d extract.DiscoveredURL) bool {
	normalized, err := extract.NormalizeURL(d.URL)
	if err != nil {
		return false
	}
	if !extract.SameHost(normalized, s.base) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.index[normalized]; dup {
		return false
	}
	s.index[normalized] = struct{}{}
	d.URL = normalized
	s.items = append(s.items, d)
	return true
}

// Has reports whether a normalized form of rawURL is already present.
func (s *urlSet) Has(rawURL string) bool {
	normalized, err := extract.NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[normalized]
	return ok
}

func (s *urlSet) ordered() []extract.DiscoveredURL {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]extract.DiscoveredURL, len(s.items))
	copy(out, s.items)
	return out
}
