package events

import (
	"fmt"
	"sync"
)

// Phase names an ordered pipeline stage.
type Phase string

// Pipeline phases in execution order.
const (
	PhaseDiscovery   Phase = "discovery"
	PhaseRapidScrape Phase = "rapid-scrape"
	PhaseValidation  Phase = "validation"
	PhaseEnhancement Phase = "enhancement"
	PhaseComplete    Phase = "complete"
)

// Ordered returns the canonical phase order.
func Ordered() []Phase {
	return []Phase{PhaseDiscovery, PhaseRapidScrape, PhaseValidation, PhaseEnhancement, PhaseComplete}
}

// ParsePhase maps a wire string onto a known phase.
func ParsePhase(s string) (Phase, error) {
	for _, p := range Ordered() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// PhaseStatus is the lifecycle state of one phase.
type PhaseStatus string

// Phase lifecycle states: pending -> in-progress -> {complete|skipped|failed}.
const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in-progress"
	PhaseDone       PhaseStatus = "complete"
	PhaseSkipped    PhaseStatus = "skipped"
	PhaseFailed     PhaseStatus = "failed"
)

// Tracker holds the per-run phase state machine. It is safe for concurrent
// use; transitions out of a terminal state are rejected.
type Tracker struct {
	mu     sync.Mutex
	states map[Phase]PhaseStatus
}

// NewTracker creates a Tracker with every phase pending.
func NewTracker() *Tracker {
	states := make(map[Phase]PhaseStatus, len(Ordered()))
	for _, p := range Ordered() {
		states[p] = PhasePending
	}
	return &Tracker{states: states}
}

// Start transitions a pending phase to in-progress.
func (t *Tracker) Start(p Phase) error {
	return t.transition(p, PhaseInProgress, PhasePending)
}

// Complete transitions an in-progress phase to complete.
func (t *Tracker) Complete(p Phase) error {
	return t.transition(p, PhaseDone, PhaseInProgress)
}

// Skip transitions a pending phase directly to skipped.
func (t *Tracker) Skip(p Phase) error {
	return t.transition(p, PhaseSkipped, PhasePending)
}

// Fail transitions a phase to failed from pending or in-progress.
func (t *Tracker) Fail(p Phase) error {
	return t.transition(p, PhaseFailed, PhasePending, PhaseInProgress)
}

// Status returns the current state of p.
func (t *Tracker) Status(p Phase) PhaseStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[p]
}

// Run lists, in canonical order, the phases that actually executed. Skipped
// and still-pending phases are excluded; the terminal complete marker is
// bookkeeping rather than work, so it is excluded too.
func (t *Tracker) Run() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var run []string
	for _, p := range Ordered() {
		if p == PhaseComplete {
			continue
		}
		switch t.states[p] {
		case PhaseInProgress, PhaseDone, PhaseFailed:
			run = append(run, string(p))
		}
	}
	return run
}

func (t *Tracker) transition(p Phase, to PhaseStatus, from ...PhaseStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.states[p]
	if !ok {
		return fmt.Errorf("unknown phase %q", p)
	}
	for _, f := range from {
		if current == f {
			t.states[p] = to
			return nil
		}
	}
	return fmt.Errorf("phase %s: invalid transition %s -> %s", p, current, to)
}
