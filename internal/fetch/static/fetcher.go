// Package static implements the lightweight fetch strategy using gocolly.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements extract.Fetcher with a plain HTTP fetch plus parse. It
// is the first tier: pages that need JavaScript come back thin and get
// escalated by the pipeline.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a static Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and parses the body into a PageRecord.
func (f *Fetcher) Fetch(ctx context.Context, req extract.FetchRequest) (extract.PageRecord, error) {
	var (
		body     []byte
		finalURL string
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := f.visit(ctx, collector, req.URL); err != nil {
		return extract.PageRecord{Strategy: extract.StrategyStatic}, err
	}
	if fetchErr != nil {
		return extract.PageRecord{Strategy: extract.StrategyStatic}, fmt.Errorf("static fetch %s: %w", req.URL, fetchErr)
	}
	if finalURL == "" {
		finalURL = req.URL
	}

	title, text, entities := fetch.ParsePage(finalURL, string(body))
	return extract.PageRecord{
		URL:       finalURL,
		Title:     title,
		Content:   text,
		HTML:      string(body),
		Strategy:  extract.StrategyStatic,
		Entities:  entities,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("static visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
