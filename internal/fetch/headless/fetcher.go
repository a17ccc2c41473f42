// Package headless implements the heavier fetch strategies using chromedp.
package headless

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/fetch"
)

// Config controls the headless fetcher.
type Config struct {
	// MaxParallel bounds concurrent browser tabs; 0 means unlimited.
	MaxParallel int
	UserAgent   string
	// NavigationTimeout bounds page load (default 45s).
	NavigationTimeout time.Duration
	// SettleDelay waits after body-ready so client rendering can finish.
	// The SPA profile stretches this.
	SettleDelay time.Duration
	// Strategy labels produced records; dynamic by default, spa for the
	// escalation profile.
	Strategy extract.Strategy
}

// Fetcher implements extract.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a headless fetcher backed by a shared Chrome allocator.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	if cfg.Strategy == "" {
		cfg.Strategy = extract.StrategyDynamic
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// WithStrategy returns a shallow copy that labels records with s and, for
// the SPA profile, waits longer for client-side rendering. The copy shares
// the browser allocator and tab limiter.
func (f *Fetcher) WithStrategy(s extract.Strategy) *Fetcher {
	clone := *f
	clone.cfg.Strategy = s
	if s == extract.StrategySPA {
		clone.cfg.SettleDelay = 4 * f.cfg.SettleDelay
	}
	return &clone
}

// Close cancels the allocator context, shutting down the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and parses the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, req extract.FetchRequest) (extract.PageRecord, error) {
	if err := f.acquire(ctx); err != nil {
		return extract.PageRecord{Strategy: f.cfg.Strategy}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.NavigationTimeout
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// Propagate caller cancellation into the browser task.
		select {
		case <-ctx.Done():
			taskCancel()
		case <-stop:
		}
	}()

	html, finalURL, err := f.runHeadless(taskCtx, req.URL)
	if err != nil {
		return extract.PageRecord{Strategy: f.cfg.Strategy}, err
	}
	if finalURL == "" {
		finalURL = req.URL
	}

	title, text, entities := fetch.ParsePage(finalURL, html)
	return extract.PageRecord{
		URL:       finalURL,
		Title:     title,
		Content:   text,
		HTML:      html,
		Strategy:  f.cfg.Strategy,
		Entities:  entities,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}
