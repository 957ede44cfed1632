package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/feynwatch/internal/state"
	"github.com/user/feynwatch/internal/tokens"
	"github.com/user/feynwatch/internal/transport"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/internal/workflow"
	"github.com/user/feynwatch/pkg/adk"
)

type mockBackend struct {
	mu     sync.Mutex
	events []adk.Event
}

func (b *mockBackend) CreateSession(ctx context.Context) (*adk.Session, error) {
	return &adk.Session{ID: "sess-api"}, nil
}

func (b *mockBackend) GetSession(ctx context.Context, id string) (*adk.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &adk.Session{ID: id, Events: b.events}, nil
}

func (b *mockBackend) Run(ctx context.Context, sessionID, text string) error { return nil }

func (b *mockBackend) OpenEvents(ctx context.Context, lastEventID string) (io.ReadCloser, error) {
	return nil, errors.New("stream disabled")
}

type mockStatus struct{}

func (mockStatus) Status() types.ConnectionStatus {
	return types.ConnectionStatus{IsConnected: true, Stream: "disabled"}
}

func newController(events ...adk.Event) *workflow.Controller {
	opts := workflow.DefaultOptions()
	opts.Poller = transport.PollerOptions{Interval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond, Backoff: 2}
	opts.Flags = workflow.NewFlags(false)
	return workflow.New(&mockBackend{events: events}, opts)
}

func feedbackEvents() []adk.Event {
	now := float64(time.Now().UnixMilli()) / 1000
	return []adk.Event{
		{ID: "e1", Author: "planner_agent", Timestamp: now, Content: &adk.Content{Parts: []adk.Part{{Text: "plan the diagram"}}}},
		{ID: "e2", Author: "feedback_agent", Timestamp: now + 1, Content: &adk.Content{Parts: []adk.Part{{Text: "Here is your diagram."}}}},
	}
}

// offlineTokens never downloads BPE ranks; counts fall back to the estimate.
func offlineTokens() *tokens.Counter {
	return tokens.NewCounter("no_such_encoding")
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(newController(), Config{Tokens: offlineTokens()})

	w := do(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestAskReturnsFinalMessage(t *testing.T) {
	srv := NewServer(newController(feedbackEvents()...), Config{AskTimeout: 5 * time.Second, Tokens: offlineTokens()})

	w := do(t, srv, http.MethodPost, "/api/ask", `{"prompt":"draw electron scattering"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message == nil || resp.Message.Content != "Here is your diagram." {
		t.Fatalf("unexpected message: %+v", resp.Message)
	}
	if resp.SessionID != "sess-api" {
		t.Errorf("unexpected session id %q", resp.SessionID)
	}
	if resp.Events != 2 {
		t.Errorf("expected 2 events, got %d", resp.Events)
	}
	if resp.Tokens <= 0 {
		t.Errorf("expected a token count, got %d", resp.Tokens)
	}

	w = do(t, srv, http.MethodGet, "/api/messages", "")
	var msgs messagesResponse
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(msgs.Messages))
	}
	if msgs.Messages[0].Role != types.RoleUser || msgs.Messages[1].Role != types.RoleAssistant {
		t.Errorf("unexpected roles: %+v", msgs.Messages)
	}

	w = do(t, srv, http.MethodGet, "/api/events", "")
	var view struct {
		Events []types.ProcessedEvent `json:"events"`
	}
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if len(view.Events) != 2 || view.Events[1].Title != "Final Response" {
		t.Errorf("unexpected events: %+v", view.Events)
	}
}

func TestAskEmptyPrompt(t *testing.T) {
	srv := NewServer(newController(), Config{Tokens: offlineTokens()})

	w := do(t, srv, http.MethodPost, "/api/ask", `{"prompt":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Please enter a message.") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = do(t, srv, http.MethodPost, "/api/ask", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestAskRejectsConcurrentCaller(t *testing.T) {
	srv := NewServer(newController(), Config{Tokens: offlineTokens()})
	if !srv.ask.TryAcquire(1) {
		t.Fatal("expected to acquire the ask slot")
	}
	defer srv.ask.Release(1)

	w := do(t, srv, http.MethodPost, "/api/ask", `{"prompt":"draw"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStatusAndStop(t *testing.T) {
	srv := NewServer(newController(), Config{Health: mockStatus{}, Tokens: offlineTokens()})

	w := do(t, srv, http.MethodGet, "/api/status", "")
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Workflow.State != workflow.StateIdle {
		t.Errorf("expected idle, got %s", resp.Workflow.State)
	}
	if resp.Connection == nil || !resp.Connection.IsConnected {
		t.Errorf("expected connection status, got %+v", resp.Connection)
	}

	w = do(t, srv, http.MethodPost, "/api/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestSessionsFromJournal(t *testing.T) {
	journal := state.OpenJournal(t.TempDir())
	ctx := context.Background()
	now := time.Now()
	rec := &types.SessionRecord{
		SessionID: "s-42",
		RunID:     types.NewRunID(),
		Prompt:    "draw",
		Status:    "completing",
		Transport: "polling",
		CreatedAt: now,
		UpdatedAt: now,
	}
	events := []types.ProcessedEvent{
		{Title: "Planning", Data: "plan", Author: "planner_agent", Timestamp: 1},
		{Title: "Final Response", Data: "done", Author: "feedback_agent", Timestamp: 2},
	}
	if err := journal.Record(ctx, rec, events, nil); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(newController(), Config{Sessions: journal.Sessions, Events: journal.Events, Tokens: offlineTokens()})

	w := do(t, srv, http.MethodGet, "/api/sessions", "")
	var sessions []sessionResponse
	if err := json.NewDecoder(w.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-42" || sessions[0].EventCount != 2 {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	w = do(t, srv, http.MethodGet, "/api/sessions/s-42/events?limit=1", "")
	var got []types.ProcessedEvent
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Final Response" {
		t.Errorf("expected last event only, got %+v", got)
	}

	w = do(t, srv, http.MethodGet, "/api/sessions/missing/events", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", w.Code)
	}
}

func TestSessionsWithoutJournal(t *testing.T) {
	srv := NewServer(newController(), Config{Tokens: offlineTokens()})

	w := do(t, srv, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(newController(), Config{Tokens: offlineTokens()})

	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "feynwatch_") {
		t.Error("expected feynwatch metrics in exposition")
	}
}
