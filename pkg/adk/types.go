package adk

import "encoding/json"

// Part is one element of an event's content. Exactly one of the fields is
// normally set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is a tool invocation requested by an agent.
type FunctionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries the result of a FunctionCall.
type FunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Content is the message body of a session event.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Actions holds side effects attached to an event.
type Actions struct {
	TransferToAgent string `json:"transferToAgent,omitempty"`
}

// Event is a session-replay record as returned inside a Session snapshot.
// Timestamp is in seconds since the epoch.
type Event struct {
	ID           string   `json:"id"`
	Author       string   `json:"author"`
	InvocationID string   `json:"invocationId,omitempty"`
	Timestamp    float64  `json:"timestamp"`
	Content      *Content `json:"content,omitempty"`
	Actions      *Actions `json:"actions,omitempty"`
}

// Parts returns the event's content parts, or nil when the event carries no
// content.
func (e *Event) Parts() []Part {
	if e.Content == nil {
		return nil
	}
	return e.Content.Parts
}

// Session is a backend session snapshot. Events is the full history of the
// session on every fetch.
type Session struct {
	ID             string  `json:"id"`
	AppName        string  `json:"appName,omitempty"`
	UserID         string  `json:"userId,omitempty"`
	LastUpdateTime float64 `json:"lastUpdateTime,omitempty"`
	Events         []Event `json:"events"`
}

// PushEvent is a compact real-time record delivered over the event stream.
// TS is in seconds since the epoch.
type PushEvent struct {
	// ID is the SSE frame id the event arrived with. It is not part of the
	// JSON body.
	ID string `json:"-"`

	Type      string         `json:"type"`
	TS        float64        `json:"ts"`
	TraceID   string         `json:"traceId,omitempty"`
	StepID    string         `json:"stepId,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Message   string         `json:"message,omitempty"`
	LatencyMS float64        `json:"latency_ms,omitempty"`
	Level     int            `json:"level,omitempty"`
}

// Summary returns payload.summary when it is a non-empty string.
func (e *PushEvent) Summary() string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload["summary"].(string)
	return s
}

// MCPHealth is the secondary server metadata served by the MCP sidecar.
type MCPHealth struct {
	Edition   string          `json:"edition"`
	UptimeSec float64         `json:"uptime_sec"`
	Tools     json.RawMessage `json:"tools,omitempty"`
}

// ToolsCount returns the number of tools advertised, or zero when the tools
// field is absent or not an array.
func (h *MCPHealth) ToolsCount() int {
	if len(h.Tools) == 0 {
		return 0
	}
	var tools []json.RawMessage
	if err := json.Unmarshal(h.Tools, &tools); err != nil {
		return 0
	}
	return len(tools)
}

// runRequest is the body of POST /run.
type runRequest struct {
	AppName    string     `json:"appName"`
	UserID     string     `json:"userId"`
	SessionID  string     `json:"sessionId"`
	NewMessage newMessage `json:"newMessage"`
	Streaming  bool       `json:"streaming"`
}

type newMessage struct {
	Parts []Part `json:"parts"`
	Role  string `json:"role"`
}

// createSessionRequest is the body of POST /apps/{app}/users/{user}/sessions.
type createSessionRequest struct {
	State  map[string]any `json:"state"`
	Events []Event        `json:"events"`
}
