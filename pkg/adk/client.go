package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSessionNotFound is returned by GetSession when the backend answers 404.
// The session has expired and polling it further is pointless.
var ErrSessionNotFound = errors.New("session not found")

// StatusError reports an unexpected HTTP status from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Config holds the connection settings for the agent backend.
type Config struct {
	BaseURL      string
	AppName      string
	UserID       string
	EventsURL    string
	MCPHealthURL string
}

// Client talks to the agent backend over its HTTP contract.
type Client struct {
	config *Config
	// httpClient carries a deadline for request/response calls; the event
	// stream uses streamClient, which has none.
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a backend client with the given configuration.
func New(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// Config returns the client's configuration.
func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) sessionsURL() string {
	return fmt.Sprintf("%s/apps/%s/users/%s/sessions",
		strings.TrimRight(c.config.BaseURL, "/"),
		url.PathEscape(c.config.AppName),
		url.PathEscape(c.config.UserID),
	)
}

// ListApps calls GET /list-apps. It doubles as the liveness probe.
func (c *Client) ListApps(ctx context.Context) ([]string, error) {
	var apps []string
	if err := c.getJSON(ctx, "list apps", strings.TrimRight(c.config.BaseURL, "/")+"/list-apps", &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// MCPHealth fetches the optional sidecar metadata from {mcp-health-url}/health.
func (c *Client) MCPHealth(ctx context.Context) (*MCPHealth, error) {
	if c.config.MCPHealthURL == "" {
		return nil, errors.New("mcp health url not configured")
	}
	var health MCPHealth
	if err := c.getJSON(ctx, "mcp health", strings.TrimRight(c.config.MCPHealthURL, "/")+"/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// CreateSession opens a fresh backend session with empty state.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(createSessionRequest{
		State:  map[string]any{},
		Events: []Event{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	respBody, err := c.do(ctx, "create session", http.MethodPost, c.sessionsURL(), body)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	if session.ID == "" {
		return nil, errors.New("create session: response has no id")
	}
	return &session, nil
}

// GetSession fetches the full session snapshot. A 404 yields
// ErrSessionNotFound.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	err := c.getJSON(ctx, "get session", c.sessionsURL()+"/"+url.PathEscape(id), &session)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
		}
		return nil, err
	}
	return &session, nil
}

// Run submits a user message to the session. The response body is drained
// and discarded; results arrive through polling or the event stream.
func (c *Client) Run(ctx context.Context, sessionID, text string) error {
	body, err := json.Marshal(runRequest{
		AppName:   c.config.AppName,
		UserID:    c.config.UserID,
		SessionID: sessionID,
		NewMessage: newMessage{
			Parts: []Part{{Text: text}},
			Role:  "user",
		},
		Streaming: false,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/run", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// The run call lasts as long as the whole workflow, so it must not be
	// bound by the request/response deadline.
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending run: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &StatusError{Op: "run", StatusCode: resp.StatusCode}
	}
	return nil
}

// OpenEvents connects to the push event stream. lastEventID, when set, is
// sent as Last-Event-ID so the server can replay missed frames. The caller
// owns the returned body.
func (c *Client) OpenEvents(ctx context.Context, lastEventID string) (io.ReadCloser, error) {
	if c.config.EventsURL == "" {
		return nil, errors.New("events url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.EventsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Op: "open events", StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, op, url string, out any) error {
	respBody, err := c.do(ctx, op, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}
