package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/events"
	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
)

type extractionOptions struct {
	MaxPages       int      `json:"max_pages"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Mode           string   `json:"mode"`
	SkipPhases     []string `json:"skip_phases"`
	Stream         bool     `json:"stream"`
}

type extractionRequest struct {
	Domain  string            `json:"domain"`
	Options extractionOptions `json:"options"`
}

func (req extractionRequest) toOptions() (extract.Options, error) {
	mode := extract.Mode(req.Options.Mode)
	switch mode {
	case "", extract.ModeInitial:
		mode = extract.ModeInitial
	case extract.ModeDynamic, extract.ModeIncremental:
	default:
		return extract.Options{}, fmt.Errorf("unknown mode %q", req.Options.Mode)
	}
	return extract.Options{
		MaxPages:   req.Options.MaxPages,
		Timeout:    time.Duration(req.Options.TimeoutSeconds) * time.Second,
		Mode:       mode,
		SkipPhases: req.Options.SkipPhases,
		Stream:     req.Options.Stream,
	}, nil
}

// submitExtraction handles POST /v1/extractions. The run itself is detached
// from the request; progress is observable via the events stream.
func (s *Server) submitExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Domain == "" {
		s.writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	sess := session.Session{
		ID:        uuid.New(),
		Domain:    req.Domain,
		Status:    session.StatusPending,
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(r.Context(), sess); err != nil {
		s.logger.Error("create session failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	busCfg := s.cfg.Bus
	busCfg.Logger = s.logger.Named("bus")
	bus := events.NewBus(busCfg, events.NewLogSink(s.logger.Named("events")))
	s.registerBus(sess.ID, bus)

	go s.runDetached(sess, bus)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sess.ID.String()})
}

// runDetached executes one extraction outside the request lifecycle.
func (s *Server) runDetached(sess session.Session, bus *events.Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunBudget)
	defer cancel()
	defer func() {
		// Unregister first so late subscribers fall through to the stored
		// session state instead of racing the bus teardown.
		s.unregisterBus(sess.ID)
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = bus.Close(closeCtx)
	}()

	if _, err := s.runner.Run(ctx, sess, bus); err != nil {
		s.logger.Error("extraction run failed",
			zap.String("session_id", sess.ID.String()),
			zap.Error(err),
		)
	}
}

// streamEvents handles GET /v1/extractions/{session_id}/events as SSE. A
// disconnected client ends the stream without touching the run.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	bus, live := s.lookupBus(id)
	if !live {
		s.streamFinal(w, r, flusher, id)
		return
	}

	ch, cancel := bus.Subscribe()
	defer cancel()

	writeSSEHeaders(w)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			// Client went away; benign.
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, flusher, evt); err != nil {
				s.logger.Debug("event stream write failed", zap.Error(err))
				return
			}
			if evt.Type.Terminal() {
				return
			}
		}
	}
}

// streamFinal serves the events route for a session whose run already ended:
// a single synthetic status event with the stored outcome.
func (s *Server) streamFinal(w http.ResponseWriter, r *http.Request, flusher http.Flusher, id uuid.UUID) {
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("load session failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	kind := events.KindStatus
	priority := events.PriorityNormal
	msg := fmt.Sprintf("session is %s", sess.Status)
	switch sess.Status {
	case session.StatusComplete:
		kind = events.KindComplete
		priority = events.PriorityHigh
		msg = "extraction complete"
	case session.StatusFailed:
		kind = events.KindError
		priority = events.PriorityFatal
		msg = "extraction failed"
		if sess.ErrorText != "" {
			msg = "extraction failed: " + sess.ErrorText
		}
	}
	writeSSEHeaders(w)
	evt := events.Event{
		Type:          kind,
		Phase:         events.PhaseComplete,
		CorrelationID: id.String(),
		Timestamp:     s.now(),
		Priority:      priority,
		Source:        "api",
		Message:       msg,
	}
	if err := writeSSE(w, flusher, evt); err != nil {
		s.logger.Debug("event stream write failed", zap.Error(err))
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	flusher.Flush()
	return nil
}

// getResult handles GET /v1/extractions/{session_id}/result.
func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("load session failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	switch sess.Status {
	case session.StatusComplete:
		if sess.Dataset == nil {
			s.writeError(w, http.StatusInternalServerError, "dataset missing for completed session")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  string(sess.Status),
			"dataset": sess.Dataset,
		})
	case session.StatusFailed:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status": string(sess.Status),
			"error":  sess.ErrorText,
		})
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"status": string(sess.Status),
		})
	}
}
