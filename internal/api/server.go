// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/state"
	"github.com/user/feynwatch/internal/tokens"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/internal/workflow"
)

// Engine is the workflow controller as seen by the API.
type Engine interface {
	Submit(ctx context.Context, text string, opts ...workflow.RunOption) (*workflow.Run, error)
	Stop()
	Snapshot() workflow.Snapshot
	View() reconcile.View
	Messages() []types.ADKMessage
}

// StatusSource reports backend connectivity.
type StatusSource interface {
	Status() types.ConnectionStatus
}

// Config wires the optional collaborators of a Server.
type Config struct {
	Health   StatusSource
	Sessions types.SessionStore
	Events   types.EventStore
	Tokens   *tokens.Counter

	// MaxConcurrentAsk bounds synchronous /api/ask callers. Extra callers
	// get 409 instead of cancelling the workflow in flight.
	MaxConcurrentAsk int64
	AskTimeout       time.Duration
}

// Server is the local HTTP surface of a running engine.
type Server struct {
	engine Engine
	cfg    Config
	ask    *semaphore.Weighted
	mux    *http.ServeMux
}

func NewServer(engine Engine, cfg Config) *Server {
	if cfg.MaxConcurrentAsk <= 0 {
		cfg.MaxConcurrentAsk = 1
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = 10 * time.Minute
	}
	if cfg.Tokens == nil {
		cfg.Tokens = tokens.NewCounter("")
	}
	s := &Server{
		engine: engine,
		cfg:    cfg,
		ask:    semaphore.NewWeighted(cfg.MaxConcurrentAsk),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Workflow   workflow.Snapshot       `json:"workflow"`
	Connection *types.ConnectionStatus `json:"connection,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Workflow: s.engine.Snapshot()}
	if s.cfg.Health != nil {
		st := s.cfg.Health.Status()
		resp.Connection = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view := s.engine.View()
	if view.Events == nil {
		view.Events = []types.ProcessedEvent{}
	}
	writeJSON(w, http.StatusOK, view)
}

type messagesResponse struct {
	Messages []types.ADKMessage `json:"messages"`
	Tokens   int                `json:"tokens"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.engine.Messages()
	writeJSON(w, http.StatusOK, messagesResponse{
		Messages: msgs,
		Tokens:   s.cfg.Tokens.Messages(msgs),
	})
}

type askRequest struct {
	Prompt string `json:"prompt"`
}

type askResponse struct {
	SessionID  string            `json:"sessionId"`
	Message    *types.ADKMessage `json:"message"`
	Events     int               `json:"events"`
	Duplicates int               `json:"duplicates"`
	Tokens     int               `json:"tokens"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !s.ask.TryAcquire(1) {
		writeError(w, http.StatusConflict, "another request is in progress")
		return
	}
	defer s.ask.Release(1)

	// The workflow outlives a dropped client; it ends on its own and is
	// journaled.
	run, err := s.engine.Submit(context.WithoutCancel(r.Context()), req.Prompt)
	if err != nil {
		writeError(w, askStatus(err), workflow.UserMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()
	msg, err := run.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, http.StatusGatewayTimeout, "workflow still running")
			return
		}
		writeError(w, askStatus(err), workflow.UserMessage(err))
		return
	}

	view := s.engine.View()
	writeJSON(w, http.StatusOK, askResponse{
		SessionID:  run.SessionID,
		Message:    msg,
		Events:     len(view.Events),
		Duplicates: view.Duplicates,
		Tokens:     s.cfg.Tokens.Count(msg.Content),
	})
}

func askStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrBackendUnreachable), errors.Is(err, workflow.ErrSubmitFailed):
		return http.StatusBadGateway
	case errors.Is(err, workflow.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrSessionExpired), errors.Is(err, workflow.ErrNoResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(snap.State)})
}

type sessionResponse struct {
	SessionID  string `json:"session_id"`
	RunID      string `json:"run_id"`
	Prompt     string `json:"prompt"`
	Status     string `json:"status"`
	Transport  string `json:"transport,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	EventCount int64  `json:"event_count"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil || s.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	ctx := r.Context()
	records, err := s.cfg.Sessions.List(ctx)
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	result := make([]sessionResponse, 0, len(records))
	for _, rec := range records {
		count, err := s.cfg.Events.Count(ctx, rec.SessionID)
		if err != nil {
			slog.Warn("count events failed", "session_id", rec.SessionID, "error", err)
		}
		result = append(result, sessionResponse{
			SessionID:  rec.SessionID,
			RunID:      string(rec.RunID),
			Prompt:     rec.Prompt,
			Status:     rec.Status,
			Transport:  rec.Transport,
			Error:      rec.Error,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
			EventCount: count,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil || s.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	ctx := r.Context()
	sessionID := r.PathValue("id")

	if _, err := s.cfg.Sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("get session failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	limit := 200
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.cfg.Events.Tail(ctx, sessionID, limit)
	if err != nil {
		slog.Error("tail events failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if events == nil {
		events = []types.ProcessedEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
