package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandforge/siteharvest/internal/events"
	"github.com/brandforge/siteharvest/internal/extract"
	"github.com/brandforge/siteharvest/internal/session"
	sessionmemory "github.com/brandforge/siteharvest/internal/session/memory"
)

// gateRunner publishes a progress and a terminal event, holding the run open
// until released so stream tests can attach first.
type gateRunner struct {
	sessions session.Store
	started  chan struct{}
	release  chan struct{}
}

func newGateRunner(sessions session.Store) *gateRunner {
	return &gateRunner{
		sessions: sessions,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (r *gateRunner) Run(ctx context.Context, sess session.Session, bus *events.Bus) (extract.AggregatedDataset, error) {
	bus.Publish(events.Event{
		Type:          events.KindProgress,
		Phase:         events.PhaseDiscovery,
		CorrelationID: sess.ID.String(),
		Timestamp:     time.Now().UTC(),
		Priority:      events.PriorityNormal,
		Source:        "discovery",
		Message:       "discovery started",
	})
	close(r.started)
	select {
	case <-r.release:
	case <-ctx.Done():
		return extract.AggregatedDataset{}, ctx.Err()
	}

	dataset := extract.AggregatedDataset{Metadata: extract.DatasetMetadata{Domain: sess.Domain}}
	_ = r.sessions.UpsertDataset(ctx, sess.ID, dataset)
	_ = r.sessions.SetStatus(ctx, sess.ID, session.StatusComplete, "")
	bus.Publish(events.Event{
		Type:          events.KindComplete,
		Phase:         events.PhaseComplete,
		CorrelationID: sess.ID.String(),
		Timestamp:     time.Now().UTC(),
		Priority:      events.PriorityHigh,
		Source:        "orchestrator",
		Message:       "extraction complete",
	})
	return dataset, nil
}

func newTestServer(t *testing.T, sessions session.Store, runner Runner) *httptest.Server {
	t.Helper()
	s := NewServer(sessions, runner, nil, Config{}, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postExtraction(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+"/v1/extractions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestSubmitExtractionAccepted(t *testing.T) {
	t.Parallel()

	sessions := sessionmemory.New()
	runner := newGateRunner(sessions)
	srv := newTestServer(t, sessions, runner)

	resp := postExtraction(t, srv, `{"domain":"acme.test","options":{"max_pages":5}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp)
	id, err := uuid.Parse(body["session_id"].(string))
	require.NoError(t, err)

	sess, err := sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "acme.test", sess.Domain)
	assert.Equal(t, 5, sess.Options.MaxPages)

	close(runner.release)
}

func TestSubmitExtractionRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, sessionmemory.New(), newGateRunner(sessionmemory.New()))

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"domain":`},
		{"missing domain", `{"options":{}}`},
		{"unknown mode", `{"domain":"acme.test","options":{"mode":"turbo"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := postExtraction(t, srv, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetResultLifecycle(t *testing.T) {
	t.Parallel()

	sessions := sessionmemory.New()
	srv := newTestServer(t, sessions, newGateRunner(sessions))

	pending := session.Session{ID: uuid.New(), Domain: "acme.test", Status: session.StatusPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, sessions.Create(context.Background(), pending))

	failed := session.Session{ID: uuid.New(), Domain: "acme.test", Status: session.StatusFailed, ErrorText: "no reachable urls", CreatedAt: time.Now().UTC()}
	require.NoError(t, sessions.Create(context.Background(), failed))

	dataset := &extract.AggregatedDataset{Metadata: extract.DatasetMetadata{Domain: "acme.test"}}
	complete := session.Session{ID: uuid.New(), Domain: "acme.test", Status: session.StatusComplete, Dataset: dataset, CreatedAt: time.Now().UTC()}
	require.NoError(t, sessions.Create(context.Background(), complete))

	brokenComplete := session.Session{ID: uuid.New(), Domain: "acme.test", Status: session.StatusComplete, CreatedAt: time.Now().UTC()}
	require.NoError(t, sessions.Create(context.Background(), brokenComplete))

	get := func(id string) *http.Response {
		resp, err := srv.Client().Get(srv.URL + "/v1/extractions/" + id + "/result")
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := get("not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(pending.ID.String())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "pending", decodeBody(t, resp)["status"])

	resp = get(failed.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "no reachable urls", body["error"])

	resp = get(complete.ID.String())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "complete", body["status"])
	require.NotNil(t, body["dataset"])

	resp = get(brokenComplete.ID.String())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// readSSEEvents reads "event:" lines until the stream ends.
func readSSEEvents(t *testing.T, body *bufio.Scanner) []string {
	t.Helper()
	var names []string
	for body.Scan() {
		line := body.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestStreamEventsLiveRun(t *testing.T) {
	t.Parallel()

	sessions := sessionmemory.New()
	runner := newGateRunner(sessions)
	srv := newTestServer(t, sessions, runner)

	resp := postExtraction(t, srv, `{"domain":"acme.test"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := decodeBody(t, resp)["session_id"].(string)

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("runner never started")
	}

	streamResp, err := srv.Client().Get(srv.URL + "/v1/extractions/" + id + "/events")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	close(runner.release)

	names := readSSEEvents(t, bufio.NewScanner(streamResp.Body))
	require.NotEmpty(t, names)
	assert.Equal(t, "complete", names[len(names)-1], "stream ends on the terminal event")
}

func TestStreamEventsEndedSession(t *testing.T) {
	t.Parallel()

	sessions := sessionmemory.New()
	srv := newTestServer(t, sessions, newGateRunner(sessions))

	done := session.Session{ID: uuid.New(), Domain: "acme.test", Status: session.StatusComplete, CreatedAt: time.Now().UTC()}
	require.NoError(t, sessions.Create(context.Background(), done))

	resp, err := srv.Client().Get(srv.URL + "/v1/extractions/" + done.ID.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	names := readSSEEvents(t, bufio.NewScanner(resp.Body))
	assert.Equal(t, []string{"complete"}, names, "ended sessions get one synthetic event")
}

func TestStreamEventsFailedSession(t *testing.T) {
	t.Parallel()

	sessions := sessionmemory.New()
	srv := newTestServer(t, sessions, newGateRunner(sessions))

	failed := session.Session{
		ID:        uuid.New(),
		Domain:    "acme.test",
		Status:    session.StatusFailed,
		ErrorText: "no reachable urls",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, sessions.Create(context.Background(), failed))

	resp, err := srv.Client().Get(srv.URL + "/v1/extractions/" + failed.ID.String() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	names := readSSEEvents(t, bufio.NewScanner(resp.Body))
	assert.Equal(t, []string{"error"}, names, "failed sessions replay a terminal error event")
}

func TestStreamEventsUnknownSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, sessionmemory.New(), newGateRunner(sessionmemory.New()))

	resp, err := srv.Client().Get(srv.URL + "/v1/extractions/" + uuid.NewString() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/v1/extractions/nope/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// brokenStore simulates an unreachable backing store.
type brokenStore struct {
	session.Store
}

func (brokenStore) Get(context.Context, uuid.UUID) (session.Session, error) {
	return session.Session{}, errors.New("dial tcp: connection refused")
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, sessionmemory.New(), newGateRunner(sessionmemory.New()))

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	broken := newTestServer(t, brokenStore{}, newGateRunner(sessionmemory.New()))
	resp, err = broken.Client().Get(broken.URL + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, sessionmemory.New(), newGateRunner(sessionmemory.New()))

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()

	reqID := resp.Header.Get("X-Request-ID")
	_, parseErr := uuid.Parse(reqID)
	assert.NoError(t, parseErr)
}
