// internal/health/monitor.go
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/feynwatch/internal/metrics"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

// Stream states reported in ConnectionStatus.Stream.
const (
	StreamConnected    = "connected"
	StreamDisconnected = "disconnected"
	StreamDisabled     = "disabled"
)

// Prober is the part of the backend client the monitor needs.
type Prober interface {
	ListApps(ctx context.Context) ([]string, error)
	MCPHealth(ctx context.Context) (*adk.MCPHealth, error)
}

// Monitor owns the process-wide ConnectionStatus. Every writer replaces the
// relevant fields under the lock; the last write wins.
type Monitor struct {
	prober  Prober
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	status types.ConnectionStatus
	cron   *cron.Cron
}

// cronParser accepts standard 5-field expressions, an optional seconds
// field and descriptors such as "@every 30s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a monitor whose probes give up after timeout.
func New(prober Prober, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		prober:  prober,
		timeout: timeout,
		now:     time.Now,
	}
}

// Check probes GET /list-apps and, on success, enriches the status with MCP
// sidecar metadata. Enrichment failures never change the verdict.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.prober.ListApps(probeCtx)
	if err != nil {
		msg := describe(probeCtx, err)
		slog.Warn("backend health check failed", "error", err)
		metrics.HealthChecks.WithLabelValues("down").Inc()
		metrics.BackendConnected.Set(0)

		m.mu.Lock()
		m.status.IsConnected = false
		m.status.LastChecked = types.Millis(m.now())
		m.status.Error = msg
		m.status.ServerInfo = nil
		m.mu.Unlock()
		return false
	}

	info := m.serverInfo(ctx)
	metrics.HealthChecks.WithLabelValues("up").Inc()
	metrics.BackendConnected.Set(1)

	m.mu.Lock()
	m.status.IsConnected = true
	m.status.LastChecked = types.Millis(m.now())
	m.status.Error = ""
	m.status.ServerInfo = info
	m.mu.Unlock()
	return true
}

func (m *Monitor) serverInfo(ctx context.Context) *types.ServerInfo {
	infoCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	h, err := m.prober.MCPHealth(infoCtx)
	if err != nil {
		slog.Debug("mcp health unavailable", "error", err)
		return nil
	}
	return &types.ServerInfo{
		Edition:    h.Edition,
		Uptime:     h.UptimeSec,
		ToolsCount: h.ToolsCount(),
		CORSStatus: "OK",
	}
}

func describe(ctx context.Context, err error) string {
	var se *adk.StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("Backend responded with status %d", se.StatusCode)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "Connection timeout - backend may be starting up"
	default:
		return "Backend not responding - please check if ADK server is running"
	}
}

// SetStreamStatus records the push-stream state. A live stream proves the
// backend is reachable; a lost one leaves the liveness verdict to Check.
func (m *Monitor) SetStreamStatus(stream string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Stream = stream
	m.status.LastChecked = types.Millis(m.now())
	if stream == StreamConnected {
		m.status.IsConnected = true
		m.status.Error = ""
	}
	if err != nil {
		slog.Debug("stream status changed", "stream", stream, "error", err)
	}
}

// Status returns a copy of the current status.
func (m *Monitor) Status() types.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	if s.ServerInfo != nil {
		info := *s.ServerInfo
		s.ServerInfo = &info
	}
	return s
}

// Start runs Check on the given cron schedule until Stop.
func (m *Monitor) Start(schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return errors.New("health monitor already started")
	}

	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(schedule, func() {
		m.Check(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c
	slog.Info("health checks scheduled", "schedule", schedule)
	return nil
}

// Stop halts scheduled checks. It is safe to call when not started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
