package discovery

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandforge/siteharvest/internal/extract"
)

// validateReachable confirms every candidate resolves over HTTP and drops
// the rest, preserving input order. Checks run with bounded concurrency.
func (c *Coordinator) validateReachable(ctx context.Context, candidates []extract.DiscoveredURL) []extract.DiscoveredURL {
	if len(candidates) == 0 {
		return nil
	}
	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ValidateConcurrency)
	for i, candidate := range candidates {
		g.Go(func() error {
			keep[i] = c.reachable(gctx, candidate.URL)
			return nil
		})
	}
	// Workers only record booleans, so the only error path is ctx
	// cancellation, which leaves the remaining slots unreachable.
	_ = g.Wait()

	out := make([]extract.DiscoveredURL, 0, len(candidates))
	for i, candidate := range candidates {
		if keep[i] {
			out = append(out, candidate)
			continue
		}
		c.logger.Debug("dropping unreachable candidate", zap.String("url", candidate.URL))
	}
	return out
}

// reachable issues a HEAD probe, falling back to GET for servers that reject
// HEAD. Any status below 400 counts as reachable.
func (c *Coordinator) reachable(ctx context.Context, rawURL string) bool {
	status, err := c.probe(ctx, http.MethodHead, rawURL)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = c.probe(ctx, http.MethodGet, rawURL)
	}
	return err == nil && status < 400
}

func (c *Coordinator) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}
