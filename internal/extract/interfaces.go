package extract

import (
	"context"
	"time"
)

// SiteMetadata carries hints a fetch strategy may use (detected platform,
// preferred selectors). All fields are optional.
type SiteMetadata struct {
	Technology string
	SiteType   string
}

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL      string
	Timeout  time.Duration
	Metadata SiteMetadata
}

// Fetcher fetches a URL and returns a populated PageRecord. Implementations
// must honor ctx cancellation; an empty-content result is reported through
// the record's Errors, not through err.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (PageRecord, error)
}

// Analyzer supplies detected site technology for strategy selection. A nil
// Analyzer is valid and routes everything to the heavier strategy.
type Analyzer interface {
	Analyze(ctx context.Context, domain string) (SiteMetadata, error)
}

// Clock returns the current time; injected so time-based behavior is
// testable without real timers.
type Clock interface {
	Now() time.Time
}
