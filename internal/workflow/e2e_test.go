package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/feynwatch/internal/health"
	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

// agentServer fakes the backend contract. Each poll reveals one more event
// of the script, replaying everything revealed so far.
type agentServer struct {
	mu       sync.Mutex
	script   []adk.Event
	revealed int
	prompt   string
}

func (s *agentServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /list-apps", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["feynmancraft_adk"]`))
	})
	mux.HandleFunc("POST /apps/feynmancraft_adk/users/user/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sess-e2e","events":[]}`))
	})
	mux.HandleFunc("GET /apps/feynmancraft_adk/users/user/sessions/sess-e2e", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.revealed < len(s.script) {
			s.revealed++
		}
		session := adk.Session{ID: "sess-e2e", Events: s.script[:s.revealed]}
		s.mu.Unlock()
		json.NewEncoder(w).Encode(session)
	})
	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NewMessage struct {
				Parts []adk.Part `json:"parts"`
			} `json:"newMessage"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		if len(body.NewMessage.Parts) > 0 {
			s.prompt = body.NewMessage.Parts[0].Text
		}
		s.mu.Unlock()
		w.Write([]byte(`[]`))
	})
	return mux
}

func TestEndToEndPolling(t *testing.T) {
	now := float64(time.Now().UnixMilli()) / 1000
	srv := &agentServer{script: []adk.Event{
		{ID: "u1", Author: "user", Timestamp: now, Content: &adk.Content{Role: "user", Parts: []adk.Part{{Text: "generate an electron-positron annihilation diagram"}}}},
		textEvent("e1", "planner_agent", "1. find examples 2. generate 3. compile", now+1),
		textEvent("e2", "kb_retriever_agent", "found 3 examples", now+2),
		textEvent("e3", "diagram_generator_agent", "\\feynmandiagram{...}", now+3),
		textEvent("e4", "tikz_validator_agent", "compiled", now+4),
		textEvent("e5", "feedback_agent", "Here is your diagram.", now+5),
	}}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	client := adk.New(&adk.Config{
		BaseURL:      ts.URL,
		AppName:      "feynmancraft_adk",
		UserID:       "user",
		EventsURL:    ts.URL + "/events",
		MCPHealthURL: ts.URL + "/mcp",
	})
	monitor := health.New(client, time.Second)

	opts := testOptions()
	opts.Health = monitor
	opts.Flags = NewFlags(true)
	opts.Stream.MaxReconnects = 2
	c := New(client, opts)

	var updates atomic.Int32
	run, err := c.Submit(context.Background(), "generate an electron-positron annihilation diagram",
		WithOnUpdate(func(reconcile.View) { updates.Add(1) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if run.SessionID != "sess-e2e" {
		t.Errorf("expected backend session id, got %q", run.SessionID)
	}

	msg, err := waitRun(t, run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "Here is your diagram." {
		t.Errorf("unexpected final message %q", msg.Content)
	}

	var assistant []types.ADKMessage
	for _, m := range c.Messages() {
		if m.Role == types.RoleAssistant {
			assistant = append(assistant, m)
		}
	}
	if len(assistant) != 1 || assistant[0].Content != "Here is your diagram." {
		t.Errorf("expected exactly one assistant message, got %+v", assistant)
	}

	want := []string{"Planning Request", "Knowledge Base Search", "Diagram Generation", "LaTeX Compilation", "Final Response"}
	var titles []string
	for _, ev := range c.View().Events {
		titles = append(titles, ev.Title)
	}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Errorf("expected titles %v, got %v", want, titles)
	}
	if updates.Load() == 0 {
		t.Error("expected view updates while polling")
	}

	srv.mu.Lock()
	prompt := srv.prompt
	srv.mu.Unlock()
	if prompt != "generate an electron-positron annihilation diagram" {
		t.Errorf("unexpected prompt sent to /run: %q", prompt)
	}

	if status := monitor.Status(); !status.IsConnected || status.ServerInfo != nil {
		t.Errorf("expected connected status without MCP info, got %+v", status)
	}
}
