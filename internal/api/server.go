// Package api exposes the extraction pipeline over HTTP: submit a run,
// stream its progress events, fetch the aggregated result.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brandforge/siteharvest/internal/events"
	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/metrics"
	"github.com/brandforge/siteharvest/internal/session"
)

// Runner executes one extraction session, publishing progress to bus.
type Runner interface {
	Run(ctx context.Context, sess session.Session, bus *events.Bus) (extract.AggregatedDataset, error)
}

// Config tunes the HTTP surface.
type Config struct {
	// RequestTimeout bounds non-streaming handlers (default 30s).
	RequestTimeout time.Duration
	// RunBudget bounds a detached extraction run (default 15m).
	RunBudget time.Duration
	// Bus is the per-run event bus configuration.
	Bus events.Config
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RunBudget <= 0 {
		c.RunBudget = 15 * time.Minute
	}
	return c
}

// Server wires HTTP handlers to the runner and session store. Each active
// run owns an event bus; SSE subscribers attach to it by session id.
type Server struct {
	router   chi.Router
	sessions session.Store
	runner   Runner
	clock    extract.Clock
	cfg      Config
	logger   *zap.Logger

	mu    sync.Mutex
	buses map[uuid.UUID]*events.Bus
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sessions session.Store, runner Runner, clock extract.Clock, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions: sessions,
		runner:   runner,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		buses:    make(map[uuid.UUID]*events.Bus),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/extractions", func(r chi.Router) {
		// The SSE stream outlives any sane request timeout, so the
		// timeout wrapper covers only the non-streaming routes.
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(s.cfg.RequestTimeout))
			r.Post("/", s.submitExtraction)
			r.Get("/{session_id}/result", s.getResult)
		})
		r.Get("/{session_id}/events", s.streamEvents)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The session store is the only hard downstream; probe it with a
	// throwaway id.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.sessions.Get(ctx, uuid.Nil); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock.Now()
	}
	return time.Now().UTC()
}

func (s *Server) registerBus(id uuid.UUID, bus *events.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buses[id] = bus
}

func (s *Server) unregisterBus(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buses, id)
}

func (s *Server) lookupBus(id uuid.UUID) (*events.Bus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bus, ok := s.buses[id]
	return bus, ok
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
