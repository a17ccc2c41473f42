// Package enhance re-fetches below-threshold pages with a heavier strategy.
package enhance

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/metrics"
)

// Config controls escalation batching. The heavier strategy is
// resource-intensive, so batches are smaller than the rapid-scrape tier.
type Config struct {
	// BatchSize bounds concurrent re-fetches (default 2).
	BatchSize int
	// BatchDelay throttles between batches (default 500ms).
	BatchDelay time.Duration
	// PageTimeout bounds each re-fetch (default 60s).
	PageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 2
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = 500 * time.Millisecond
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	return c
}

// Escalator re-fetches flagged pages with the heavier strategy and splices
// successes back into the ordered record list.
type Escalator struct {
	cfg     Config
	fetcher extract.Fetcher
	logger  *zap.Logger
}

// New builds an Escalator around the heavier fetch strategy.
func New(fetcher extract.Fetcher, cfg Config, logger *zap.Logger) *Escalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{cfg: cfg.withDefaults(), fetcher: fetcher, logger: logger}
}

// Run re-fetches every flagged page. A success replaces the original record
// at its original position; a failure retains the degraded original, since
// a weak page beats a missing one. The returned count is how many records
// were replaced.
func (e *Escalator) Run(
	ctx context.Context,
	records []*extract.PageRecord,
	flagged []extract.FlaggedPage,
	onPage func(flag extract.FlaggedPage, replaced bool),
) int {
	replaced := 0
	for start := 0; start < len(flagged); start += e.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		if start > 0 {
			pause(ctx, e.cfg.BatchDelay)
		}
		end := start + e.cfg.BatchSize
		if end > len(flagged) {
			end = len(flagged)
		}
		replaced += e.runBatch(ctx, records, flagged[start:end], onPage)
	}
	return replaced
}

func (e *Escalator) runBatch(
	ctx context.Context,
	records []*extract.PageRecord,
	batch []extract.FlaggedPage,
	onPage func(flag extract.FlaggedPage, replaced bool),
) int {
	outcomes := make([]bool, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.BatchSize)
	for i, flag := range batch {
		g.Go(func() error {
			outcomes[i] = e.escalateOne(gctx, records, flag)
			return nil
		})
	}
	_ = g.Wait()

	replaced := 0
	for i, flag := range batch {
		if outcomes[i] {
			replaced++
		}
		if onPage != nil {
			onPage(flag, outcomes[i])
		}
	}
	return replaced
}

func (e *Escalator) escalateOne(ctx context.Context, records []*extract.PageRecord, flag extract.FlaggedPage) bool {
	if flag.Index < 0 || flag.Index >= len(records) || records[flag.Index] == nil {
		return false
	}
	original := records[flag.Index]

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	rec, err := e.fetcher.Fetch(fetchCtx, extract.FetchRequest{
		URL:     original.URL,
		Timeout: e.cfg.PageTimeout,
	})
	if err != nil || rec.Content == "" {
		metrics.ObserveEscalation("retained")
		e.logger.Warn("enhancement fetch failed, retaining original record",
			zap.String("url", original.URL),
			zap.String("reason", flag.Reason),
			zap.Error(err),
		)
		return false
	}

	records[flag.Index] = &rec
	metrics.ObserveEscalation("replaced")
	e.logger.Info("page enhanced",
		zap.String("url", original.URL),
		zap.String("strategy", string(rec.Strategy)),
	)
	return true
}

func pause(ctx context.Context, delay time.Duration) {
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
