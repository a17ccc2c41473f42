// Package publish defines the terminal-event publisher used to notify
// downstream consumers when an extraction run finishes.
package publish

import (
	"context"
	"time"
)

// Summary is the payload published once per finished run.
type Summary struct {
	SessionID       string    `json:"session_id"`
	Domain          string    `json:"domain"`
	Status          string    `json:"status"`
	PagesProcessed  int       `json:"pages_processed"`
	PagesAttempted  int       `json:"pages_attempted"`
	ValidationScore float64   `json:"validation_score"`
	PhasesRun       []string  `json:"phases_run"`
	DurationMs      int64     `json:"duration_ms"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Publisher delivers a run summary to an external system.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Noop drops every publish; used when no publisher is configured.
type Noop struct{}

// Publish discards the payload.
func (Noop) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}
