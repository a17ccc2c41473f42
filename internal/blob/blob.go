// Package blob abstracts where raw page snapshots are written. The pipeline
// checkpoints the rendered HTML of every fetched page so a run can be
// re-analyzed without re-crawling the site.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Store writes raw artifacts and returns a URI for later retrieval.
type Store interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Discard is a Store that drops everything; used when snapshotting is
// disabled.
type Discard struct{}

// Put drops the data and returns an empty URI.
func (Discard) Put(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SnapshotPath builds a stable object path for one page snapshot within a
// session.
func SnapshotPath(sessionID, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Sprintf("%s/%s.html", sessionID, unsafePathChars.ReplaceAllString(pageURL, "_"))
	}
	host := unsafePathChars.ReplaceAllString(u.Hostname(), "_")
	path := strings.Trim(u.EscapedPath(), "/")
	if path == "" {
		path = "root"
	}
	path = unsafePathChars.ReplaceAllString(path, "_")
	return fmt.Sprintf("%s/%s_%s.html", sessionID, host, path)
}
