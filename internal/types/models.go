package types

import (
	"time"
)

// EventStatus is the outcome attached to a processed event.
type EventStatus string

const (
	StatusPending EventStatus = "pending"
	StatusSuccess EventStatus = "success"
	StatusError   EventStatus = "error"
)

// EventSource records which transport delivered an event.
type EventSource string

const (
	SourcePolled EventSource = "polled"
	SourcePushed EventSource = "pushed"
)

// TraceInfo correlates an event with a unit of backend work. Duration is in
// milliseconds; zero means unknown.
type TraceInfo struct {
	TraceID  string `json:"traceId,omitempty"`
	StepID   string `json:"stepId,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// ProcessedEvent is the canonical event handed to presentation layers.
// Timestamp is always milliseconds since the epoch.
type ProcessedEvent struct {
	Title     string      `json:"title"`
	Data      string      `json:"data"`
	Timestamp int64       `json:"timestamp"`
	Author    string      `json:"author"`
	Details   string      `json:"details,omitempty"`
	TraceInfo *TraceInfo  `json:"traceInfo,omitempty"`
	Status    EventStatus `json:"status,omitempty"`

	Source EventSource `json:"source"`
	// Type is the push event type; empty for polled events.
	Type string `json:"type,omitempty"`
}

// Duration returns the traced duration in milliseconds, or zero.
func (e *ProcessedEvent) Duration() int64 {
	if e.TraceInfo == nil {
		return 0
	}
	return e.TraceInfo.Duration
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ADKMessage is one entry of the chat transcript. Timestamp is in
// milliseconds since the epoch.
type ADKMessage struct {
	ID        MessageID `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp int64     `json:"timestamp"`
	Author    string    `json:"author,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// ServerInfo is best-effort metadata from the MCP sidecar.
type ServerInfo struct {
	Edition    string  `json:"edition,omitempty"`
	Uptime     float64 `json:"uptime,omitempty"`
	ToolsCount int     `json:"tools_count"`
	CORSStatus string  `json:"cors_status,omitempty"`
}

// ConnectionStatus is the process-wide view of backend reachability.
// LastChecked is in milliseconds since the epoch.
type ConnectionStatus struct {
	IsConnected bool        `json:"isConnected"`
	LastChecked int64       `json:"lastChecked"`
	Error       string      `json:"error,omitempty"`
	ServerInfo  *ServerInfo `json:"serverInfo,omitempty"`
	Stream      string      `json:"stream,omitempty"`
}

// SessionRecord is the journal entry for one finished workflow.
type SessionRecord struct {
	SessionID  string    `json:"session_id"`
	RunID      RunID     `json:"run_id"`
	Prompt     string    `json:"prompt"`
	Status     string    `json:"status"`
	Transport  string    `json:"transport"`
	Error      string    `json:"error,omitempty"`
	EventCount int       `json:"event_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Millis converts t to milliseconds since the epoch.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
