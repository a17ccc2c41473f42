// Package events implements the progress event bus: typed pipeline events,
// TTL-based duplicate suppression, the phase state machine, and fan-out to
// live subscribers and sinks.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of event types. Dispatch is driven by this enum;
// inbound events with an unknown kind are ignored, never treated as errors.
type Kind string

// Supported event kinds.
const (
	KindProgress Kind = "progress"
	KindData     Kind = "data"
	KindStatus   Kind = "status"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// KnownKind reports whether k belongs to the closed kind set.
func KnownKind(k Kind) bool {
	switch k {
	case KindProgress, KindData, KindStatus, KindComplete, KindError:
		return true
	default:
		return false
	}
}

// Terminal reports whether the kind ends a run. Exactly one terminal event
// is delivered per run.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// Priority orders events for subscribers that present them to humans.
type Priority string

// Event priorities.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityFatal  Priority = "fatal"
)

// Event is one notification emitted by a pipeline phase.
type Event struct {
	Type          Kind           `json:"type"`
	Phase         Phase          `json:"phase"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Priority      Priority       `json:"priority"`
	Source        string         `json:"source,omitempty"`
	Message       string         `json:"message,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Validate performs coarse validation before an event enters the bus.
func (e Event) Validate() error {
	if e.CorrelationID == "" {
		return errors.New("correlation id is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Type == KindError && e.Priority != PriorityFatal {
		return fmt.Errorf("error events must carry fatal priority, got %q", e.Priority)
	}
	return nil
}

// DedupKey composes the structural duplicate-suppression key: event type,
// source id, and the timestamp coarsened to whole seconds so retried source
// events within the same second collapse to one delivery.
func (e Event) DedupKey() string {
	return fmt.Sprintf("%s|%s|%d", e.Type, e.Source, e.Timestamp.Unix())
}

// NotificationKey composes the secondary human-readable dedup key, which is
// independent of the structural event kind window.
func (e Event) NotificationKey() string {
	return fmt.Sprintf("%s|%s", e.Message, e.Type)
}
