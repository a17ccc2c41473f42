// Package session defines the persistence collaborator: an upsert-capable
// store keyed by session id, used to checkpoint discovered URLs and the
// final dataset.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brandforge/siteharvest/internal/extract"
)

// ErrNotFound is returned when a session id is unknown to the store.
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of one extraction session.
type Status string

// Session lifecycle states.
const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Session is the persisted state of one extraction run.
type Session struct {
	ID        uuid.UUID                  `json:"id"`
	Domain    string                     `json:"domain"`
	Status    Status                     `json:"status"`
	Options   extract.Options            `json:"options"`
	URLs      []extract.DiscoveredURL    `json:"urls,omitempty"`
	Dataset   *extract.AggregatedDataset `json:"dataset,omitempty"`
	ErrorText string                     `json:"error_text,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Store persists sessions. Upserts are idempotent per session id so the
// orchestrator can checkpoint mid-run without read-modify-write races.
type Store interface {
	Create(ctx context.Context, s Session) error
	UpsertURLs(ctx context.Context, id uuid.UUID, urls []extract.DiscoveredURL) error
	UpsertDataset(ctx context.Context, id uuid.UUID, dataset extract.AggregatedDataset) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status, errText string) error
	Get(ctx context.Context, id uuid.UUID) (Session, error)
}
