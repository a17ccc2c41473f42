// Package fetch executes page fetches in bounded-concurrency batches and
// extracts structured entities from the returned HTML.
package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/metrics"
)

// Config controls batch execution.
type Config struct {
	// BatchSize bounds concurrency within a batch (default 5).
	BatchSize int
	// BatchDelay throttles the target host between batches (default 500ms).
	BatchDelay time.Duration
	// PageTimeout bounds each individual fetch (default 30s).
	PageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	} else if c.BatchDelay == 0 {
		c.BatchDelay = 500 * time.Millisecond
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	return c
}

// PageCallback observes each completed slot in input order; rec is nil when
// the fetch failed or returned empty content.
type PageCallback func(index int, rec *extract.PageRecord)

// Executor fetches URL lists batch by batch. Batches run sequentially;
// fetches within a batch run concurrently, bounded by the batch size, and a
// partial failure never blocks sibling fetches.
type Executor struct {
	cfg     Config
	fetcher extract.Fetcher
	logger  *zap.Logger
	pause   func(ctx context.Context, d time.Duration)
}

// NewExecutor builds an Executor around the given fetch strategy.
func NewExecutor(fetcher extract.Fetcher, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		logger:  logger,
		pause:   timerPause,
	}
}

// Run fetches every URL and returns one slot per input URL in input order.
// A slot is nil when the page yielded no usable content; the batch and the
// phase continue regardless. Cancellation stops issuing new batches but
// returns the slots filled so far.
func (e *Executor) Run(
	ctx context.Context,
	urls []extract.DiscoveredURL,
	meta extract.SiteMetadata,
	onPage PageCallback,
) []*extract.PageRecord {
	results := make([]*extract.PageRecord, len(urls))
	bounds := batchBounds(len(urls), e.cfg.BatchSize)

	for batchNum, b := range bounds {
		if ctx.Err() != nil {
			e.logger.Warn("batch execution canceled", zap.Int("completed_batches", batchNum))
			break
		}
		if batchNum > 0 {
			e.pause(ctx, e.cfg.BatchDelay)
		}
		e.runBatch(ctx, urls, meta, results, b)

		for i := b.start; i < b.end; i++ {
			if onPage != nil {
				onPage(i, results[i])
			}
		}
	}
	return results
}

func (e *Executor) runBatch(
	ctx context.Context,
	urls []extract.DiscoveredURL,
	meta extract.SiteMetadata,
	results []*extract.PageRecord,
	b batchRange,
) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchSize)
	for i := b.start; i < b.end; i++ {
		g.Go(func() error {
			results[i] = e.fetchOne(gctx, urls[i], meta)
			// Failures become nil slots, never group errors, so one bad
			// page cannot cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) fetchOne(ctx context.Context, target extract.DiscoveredURL, meta extract.SiteMetadata) *extract.PageRecord {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	rec, err := e.fetcher.Fetch(fetchCtx, extract.FetchRequest{
		URL:      target.URL,
		Timeout:  e.cfg.PageTimeout,
		Metadata: meta,
	})
	if err != nil {
		metrics.ObservePageFailed(string(rec.Strategy))
		e.logger.Warn("page fetch failed", zap.String("url", target.URL), zap.Error(err))
		return nil
	}
	if rec.Content == "" {
		metrics.ObservePageFailed(string(rec.Strategy))
		e.logger.Warn("page fetch returned empty content", zap.String("url", target.URL))
		return nil
	}
	if rec.Title == "" {
		rec.Title = target.Title
	}
	metrics.ObservePageFetched(string(rec.Strategy))
	return &rec
}

type batchRange struct {
	start, end int
}

// batchBounds splits total items into fixed-size sequential batches; the
// final batch holds the remainder.
func batchBounds(total, size int) []batchRange {
	if total <= 0 || size <= 0 {
		return nil
	}
	bounds := make([]batchRange, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		bounds = append(bounds, batchRange{start: start, end: end})
	}
	return bounds
}

func timerPause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
