package adk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&Config{
		BaseURL:      srv.URL,
		AppName:      "feynmancraft_adk",
		UserID:       "user",
		EventsURL:    srv.URL + "/events",
		MCPHealthURL: srv.URL + "/mcp",
	})
}

func TestCreateSession(t *testing.T) {
	var gotBody createSessionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /apps/feynmancraft_adk/users/user/sessions", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"id":"sess-1","appName":"feynmancraft_adk","userId":"user","events":[]}`))
	})
	client := newTestClient(t, mux)

	session, err := client.CreateSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if session.ID != "sess-1" {
		t.Errorf("expected id sess-1, got %q", session.ID)
	}
	if gotBody.State == nil || gotBody.Events == nil {
		t.Error("expected empty state and events to be sent, not null")
	}
}

func TestGetSessionNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps/feynmancraft_adk/users/user/sessions/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	})
	client := newTestClient(t, mux)

	_, err := client.GetSession(context.Background(), "gone")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetSessionEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /apps/feynmancraft_adk/users/user/sessions/s1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"s1","events":[
			{"id":"e1","author":"planner_agent","timestamp":1700000000.5,"content":{"parts":[{"text":"plan"}]}},
			{"id":"e2","author":"root_agent","timestamp":1700000001,"actions":{"transferToAgent":"kb_retriever_agent"}}
		]}`))
	})
	client := newTestClient(t, mux)

	session, err := client.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(session.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(session.Events))
	}
	if session.Events[0].Parts()[0].Text != "plan" {
		t.Errorf("unexpected first part: %+v", session.Events[0].Parts())
	}
	if session.Events[1].Parts() != nil {
		t.Error("expected nil parts for event without content")
	}
	if session.Events[1].Actions.TransferToAgent != "kb_retriever_agent" {
		t.Errorf("unexpected transfer target %q", session.Events[1].Actions.TransferToAgent)
	}
}

func TestRunBody(t *testing.T) {
	var got runRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`[]`))
	})
	client := newTestClient(t, mux)

	if err := client.Run(context.Background(), "s1", "draw a diagram"); err != nil {
		t.Fatal(err)
	}
	if got.AppName != "feynmancraft_adk" || got.UserID != "user" || got.SessionID != "s1" {
		t.Errorf("unexpected run request: %+v", got)
	}
	if got.Streaming {
		t.Error("expected streaming=false")
	}
	if got.NewMessage.Role != "user" || len(got.NewMessage.Parts) != 1 || got.NewMessage.Parts[0].Text != "draw a diagram" {
		t.Errorf("unexpected new message: %+v", got.NewMessage)
	}
}

func TestListAppsStatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /list-apps", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	_, err := client.ListApps(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", se.StatusCode)
	}
}

func TestMCPHealthToolsCount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"edition":"lite","uptime_sec":42,"tools":[{"name":"search_particle"},{"name":"get_property"}]}`))
	})
	client := newTestClient(t, mux)

	health, err := client.MCPHealth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if health.Edition != "lite" || health.UptimeSec != 42 {
		t.Errorf("unexpected health: %+v", health)
	}
	if health.ToolsCount() != 2 {
		t.Errorf("expected 2 tools, got %d", health.ToolsCount())
	}

	notArray := &MCPHealth{Tools: json.RawMessage(`{"count":3}`)}
	if notArray.ToolsCount() != 0 {
		t.Error("expected 0 tools for non-array field")
	}
}

func TestOpenEventsSendsLastEventID(t *testing.T) {
	var lastID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		lastID = r.Header.Get("Last-Event-ID")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("id: 8\ndata: {\"type\":\"job.start\",\"ts\":1}\n\n"))
	})
	client := newTestClient(t, mux)

	body, err := client.OpenEvents(context.Background(), "7")
	if err != nil {
		t.Fatal(err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if lastID != "7" {
		t.Errorf("expected Last-Event-ID 7, got %q", lastID)
	}
	if len(data) == 0 {
		t.Error("expected stream body")
	}
}
