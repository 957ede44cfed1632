// Package workflow drives one prompt at a time through the agent backend:
// it creates the session, feeds both transports into a single ingestion
// queue, reconciles what arrives and decides when the workflow is done.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/feynwatch/internal/health"
	"github.com/user/feynwatch/internal/metrics"
	"github.com/user/feynwatch/internal/normalize"
	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/transport"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

// Backend is the subset of the backend client the controller drives.
type Backend interface {
	CreateSession(ctx context.Context) (*adk.Session, error)
	GetSession(ctx context.Context, id string) (*adk.Session, error)
	Run(ctx context.Context, sessionID, text string) error
	OpenEvents(ctx context.Context, lastEventID string) (io.ReadCloser, error)
}

// HealthChecker gates submissions on connectivity and receives push-stream
// state changes.
type HealthChecker interface {
	Check(ctx context.Context) bool
	Status() types.ConnectionStatus
	SetStreamStatus(stream string, err error)
}

// Journal persists finished workflows.
type Journal interface {
	Record(ctx context.Context, rec *types.SessionRecord, events []types.ProcessedEvent, msgs []types.ADKMessage) error
}

type Options struct {
	Poller transport.PollerOptions
	Stream transport.StreamOptions

	// IdleWindow and IdleMinEvents drive inactivity completion: the
	// workflow is considered finished once more than IdleMinEvents polled
	// snapshot events were received and the newest raw event is older than
	// IdleWindow.
	IdleWindow    time.Duration
	IdleMinEvents int

	// PushSkew widens the window for push events that belong to this run.
	PushSkew time.Duration

	Flags   *Flags
	Health  HealthChecker
	Journal Journal
	Now     func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Poller:        transport.DefaultPollerOptions(),
		Stream:        transport.DefaultStreamOptions(),
		IdleWindow:    60 * time.Second,
		IdleMinEvents: 5,
		PushSkew:      time.Second,
	}
}

// Controller owns the workflow state machine. At most one run drives its
// state at a time; submitting again cancels the previous run first.
type Controller struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	transport Transport
	current   *Run
	lastErr   error
	messages  []types.ADKMessage
	view      reconcile.View
	rawCount  int
}

// New creates a controller. Zero-valued options fall back to
// DefaultOptions.
func New(backend Backend, opts Options) *Controller {
	def := DefaultOptions()
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = def.IdleWindow
	}
	if opts.IdleMinEvents <= 0 {
		opts.IdleMinEvents = def.IdleMinEvents
	}
	if opts.PushSkew <= 0 {
		opts.PushSkew = def.PushSkew
	}
	if opts.Stream.MaxReconnects <= 0 {
		opts.Stream.MaxReconnects = def.Stream.MaxReconnects
	}
	if opts.Flags == nil {
		opts.Flags = NewFlags(true)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		backend: backend,
		opts:    opts,
		logger:  slog.Default().With("component", "workflow"),
		state:   StateIdle,
	}
}

// Flags returns the process-scoped flags the controller was built with.
func (c *Controller) Flags() *Flags {
	return c.opts.Flags
}

// Submit starts a workflow for text. It returns once the session exists and
// the transports are running; the outcome is delivered through the Run. A
// non-nil error means the run already finished with that error.
func (c *Controller) Submit(ctx context.Context, text string, opts ...RunOption) (*Run, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPrompt
	}

	run := newRun(text, c.opts.Now(), opts)
	runCtx, cancel := context.WithCancel(ctx)
	run.cancel = cancel

	c.mu.Lock()
	prev := c.current
	c.current = run
	c.state = StateSessionCreating
	c.transport = TransportNone
	c.lastErr = nil
	c.view = reconcile.View{}
	c.rawCount = 0
	c.messages = append(c.messages, run.userMsg)
	c.mu.Unlock()
	if prev != nil {
		c.finish(prev, nil, ErrCancelled)
	}
	c.logTransition(run, StateSessionCreating)

	if c.opts.Health != nil && !c.opts.Health.Check(runCtx) {
		err := fmt.Errorf("%w: %s", ErrBackendUnreachable, c.opts.Health.Status().Error)
		c.finish(run, nil, err)
		return run, err
	}

	session, err := c.backend.CreateSession(runCtx)
	if err != nil {
		c.finish(run, nil, fmt.Errorf("%w: %w", ErrSubmitFailed, err))
		_, err = run.Result()
		return run, err
	}

	mode := TransportPolling
	if c.opts.Flags.StreamEnabled() {
		mode = TransportSSE
	}

	c.mu.Lock()
	if c.current != run || runCtx.Err() != nil {
		c.mu.Unlock()
		c.finish(run, nil, ErrCancelled)
		_, err = run.Result()
		return run, err
	}
	run.SessionID = session.ID
	c.state = StateActive
	c.transport = mode
	c.mu.Unlock()
	c.logTransition(run, StateActive)

	go func() {
		if err := c.backend.Run(runCtx, session.ID, text); err != nil && runCtx.Err() == nil {
			c.logger.Error("run request failed", "session_id", session.ID, "error", err)
		}
	}()

	c.start(runCtx, run, mode)
	return run, nil
}

func (c *Controller) start(ctx context.Context, run *Run, mode Transport) {
	q := transport.NewQueue(64)
	poller := transport.NewPoller(func(ctx context.Context) ([]adk.Event, error) {
		s, err := c.backend.GetSession(ctx, run.SessionID)
		if err != nil {
			return nil, err
		}
		return s.Events, nil
	}, q, c.opts.Poller)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	if mode == TransportSSE {
		streamOpts := c.opts.Stream
		streamOpts.OnStatus = func(st transport.StreamStatus) { c.handleStreamStatus(run, st) }
		stream := transport.NewStream(c.backend.OpenEvents, q, streamOpts)
		g.Go(func() error { return stream.Run(gctx) })
	}
	g.Go(func() error { return c.consume(gctx, run, q, poller) })

	go func() {
		_ = g.Wait()
		q.Close()
	}()
}

// rawEvent is one accepted delivery, exactly one field set.
type rawEvent struct {
	polled *adk.Event
	pushed *adk.PushEvent
}

// consume is the single reader of the ingestion queue. It keeps the
// arrival-ordered raw log and recomputes the whole view on every batch.
func (c *Controller) consume(ctx context.Context, run *Run, q *transport.Queue, poller *transport.Poller) error {
	var raw []rawEvent
	for {
		select {
		case <-ctx.Done():
			c.finish(run, nil, ErrCancelled)
			return nil
		case b := <-q.C():
			if b.Err != nil {
				if errors.Is(b.Err, adk.ErrSessionNotFound) {
					c.finish(run, nil, fmt.Errorf("%w: %w", ErrSessionExpired, b.Err))
				} else {
					c.finish(run, nil, b.Err)
				}
				return nil
			}

			before := len(raw)
			raw = c.accept(run, raw, b)
			if hasRefreshHint(raw[before:]) {
				if fresh, err := poller.PollOnce(ctx); err == nil {
					raw = c.accept(run, raw, fresh)
				} else {
					c.logger.Warn("hinted snapshot refresh failed", "session_id", run.SessionID, "error", err)
				}
			}
			view := c.refresh(run, raw)

			reason := c.detectCompletion(view.Events, raw)
			if reason == "" {
				continue
			}
			c.setState(run, StateCompleting)
			c.logger.Info("workflow completion detected", "session_id", run.SessionID, "reason", reason, "events", len(view.Events), "raw_events", len(raw))

			if !hasTerminalPolled(raw) {
				if fresh, err := poller.PollOnce(ctx); err == nil {
					raw = c.accept(run, raw, fresh)
					c.refresh(run, raw)
				} else {
					c.logger.Warn("final snapshot refresh failed", "session_id", run.SessionID, "error", err)
				}
			}

			msg, err := extractFinalMessage(raw)
			if err != nil {
				c.finish(run, nil, err)
				return nil
			}
			msg.SessionID = run.SessionID
			msg.Timestamp = types.Millis(c.opts.Now())
			c.finish(run, msg, nil)
			return nil
		}
	}
}

// accept appends a batch to the raw log. Missing timestamps are stamped with
// the arrival time; push events older than the run (minus skew) are
// history replayed by the shared stream and are dropped.
func (c *Controller) accept(run *Run, raw []rawEvent, b transport.Batch) []rawEvent {
	arrival := float64(b.At.UnixMilli()) / 1000
	if b.At.IsZero() {
		arrival = float64(c.opts.Now().UnixMilli()) / 1000
	}
	cutoff := float64(run.StartedAt.Add(-c.opts.PushSkew).UnixMilli()) / 1000

	accepted := 0
	for i := range b.Polled {
		ev := b.Polled[i]
		if ev.Timestamp == 0 {
			ev.Timestamp = arrival
		}
		raw = append(raw, rawEvent{polled: &ev})
		accepted++
	}
	for i := range b.Pushed {
		ev := b.Pushed[i]
		if ev.TS == 0 {
			ev.TS = arrival
		}
		if ev.TS < cutoff {
			continue
		}
		raw = append(raw, rawEvent{pushed: &ev})
		accepted++
	}
	if accepted > 0 {
		metrics.EventsIngested.WithLabelValues(string(b.Source)).Add(float64(accepted))
	}
	return raw
}

func hasRefreshHint(raw []rawEvent) bool {
	for _, r := range raw {
		if r.pushed != nil && isRefreshHint(r.pushed) {
			return true
		}
	}
	return false
}

func normalizeAll(raw []rawEvent) []types.ProcessedEvent {
	out := make([]types.ProcessedEvent, 0, len(raw))
	for _, r := range raw {
		var (
			pe types.ProcessedEvent
			ok bool
		)
		if r.polled != nil {
			pe, ok = normalize.Polled(*r.polled)
		} else {
			pe, ok = normalize.Pushed(*r.pushed)
		}
		if ok {
			out = append(out, pe)
		}
	}
	return out
}

// refresh recomputes the view from scratch and publishes it if run is still
// the current one.
func (c *Controller) refresh(run *Run, raw []rawEvent) reconcile.View {
	view := reconcile.Reconcile(normalizeAll(raw))

	c.mu.Lock()
	current := c.current == run
	if current {
		c.view = view
		c.rawCount = len(raw)
	}
	c.mu.Unlock()
	if !current {
		return view
	}

	metrics.ProcessedEvents.Set(float64(len(view.Events)))
	metrics.ReconcileDuplicates.Set(float64(view.Duplicates))
	if run.onUpdate != nil {
		run.onUpdate(view)
	}
	return view
}

// handleStreamStatus reacts to push-stream connects and disconnects. Once
// the stream reports the reconnect ceiling, push is disabled for the whole
// process and this run continues on polling alone.
func (c *Controller) handleStreamStatus(run *Run, st transport.StreamStatus) {
	if st.Connected {
		if c.opts.Health != nil {
			c.opts.Health.SetStreamStatus(health.StreamConnected, nil)
		}
		return
	}

	if st.Exhausted || st.Attempts >= c.opts.Stream.MaxReconnects {
		if c.opts.Flags.DisableStream() {
			metrics.StreamFallbacks.Inc()
			c.logger.Warn("push stream disabled, falling back to polling", "attempts", st.Attempts, "error", st.Err)
		}
		if c.opts.Health != nil {
			c.opts.Health.SetStreamStatus(health.StreamDisabled, st.Err)
		}
		c.mu.Lock()
		if run != nil && c.current == run && c.state == StateActive {
			c.transport = TransportPolling
		}
		c.mu.Unlock()
		return
	}

	if c.opts.Health != nil {
		c.opts.Health.SetStreamStatus(health.StreamDisconnected, st.Err)
	}
}

// Stop cancels the current run. It is safe to call at any time and more
// than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	run := c.current
	c.mu.Unlock()
	if run != nil {
		c.finish(run, nil, ErrCancelled)
	}
}

func (c *Controller) setState(run *Run, s State) {
	c.mu.Lock()
	if c.current == run {
		c.state = s
	}
	c.mu.Unlock()
}

// finish ends run exactly once: it stops every transport, settles the
// controller state and journals the outcome. The completion callback runs
// after the run is sealed so it may submit again.
func (c *Controller) finish(run *Run, msg *types.ADKMessage, err error) {
	fired := false
	run.once.Do(func() {
		fired = true
		run.cancel()

		c.mu.Lock()
		current := c.current == run
		state := StateIdle
		switch {
		case errors.Is(err, ErrCancelled):
			state = StateCancelled
		case err != nil:
			state = StateError
		}
		if current {
			c.state = state
			c.lastErr = err
			if msg != nil {
				c.messages = append(c.messages, *msg)
			}
		}
		var (
			view     reconcile.View
			mode     Transport
			rawCount int
		)
		if current {
			view, mode, rawCount = c.view, c.transport, c.rawCount
		}
		c.mu.Unlock()

		run.message, run.err = msg, err

		outcome := "complete"
		if err != nil {
			outcome = string(state)
		}
		metrics.Workflows.WithLabelValues(outcome).Inc()
		metrics.WorkflowDuration.Observe(c.opts.Now().Sub(run.StartedAt).Seconds())

		if err != nil && !errors.Is(err, ErrCancelled) {
			c.logger.Error("workflow failed", "session_id", run.SessionID, "state", state, "transport", mode, "events", len(view.Events), "raw_events", rawCount, "error", err)
		} else {
			c.logger.Info("workflow finished", "session_id", run.SessionID, "state", state, "transport", mode, "events", len(view.Events), "raw_events", rawCount)
		}

		c.record(run, state, mode, view, msg, err)

		close(run.done)
	})
	if fired && run.onComplete != nil {
		run.onComplete(run.message, run.err)
	}
}

func (c *Controller) record(run *Run, state State, mode Transport, view reconcile.View, msg *types.ADKMessage, err error) {
	if c.opts.Journal == nil || run.SessionID == "" {
		return
	}
	rec := &types.SessionRecord{
		SessionID:  run.SessionID,
		RunID:      run.ID,
		Prompt:     run.Prompt,
		Status:     string(state),
		Transport:  string(mode),
		EventCount: len(view.Events),
		CreatedAt:  run.StartedAt,
		UpdatedAt:  c.opts.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	user := run.userMsg
	user.SessionID = run.SessionID
	msgs := []types.ADKMessage{user}
	if msg != nil {
		msgs = append(msgs, *msg)
	}
	if jerr := c.opts.Journal.Record(context.Background(), rec, view.Events, msgs); jerr != nil {
		c.logger.Error("journal write failed", "session_id", run.SessionID, "error", jerr)
	}
}

func (c *Controller) logTransition(run *Run, s State) {
	c.mu.Lock()
	mode := c.transport
	events := len(c.view.Events)
	rawCount := c.rawCount
	c.mu.Unlock()
	c.logger.Info("workflow state", "session_id", run.SessionID, "run_id", string(run.ID), "state", s, "transport", mode, "events", events, "raw_events", rawCount)
}

// Snapshot is a point-in-time summary of the controller.
type Snapshot struct {
	State     State     `json:"state"`
	Transport Transport `json:"transport,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    int       `json:"events"`
	RawEvents int       `json:"rawEvents"`
	Stream    bool      `json:"streamEnabled"`
}

// State returns the current lifecycle state and transport.
func (c *Controller) State() (State, Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.transport
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:     c.state,
		Transport: c.transport,
		Error:     UserMessage(c.lastErr),
		Events:    len(c.view.Events),
		RawEvents: c.rawCount,
		Stream:    c.opts.Flags.StreamEnabled(),
	}
	if c.current != nil {
		s.SessionID = c.current.SessionID
		s.Prompt = c.current.Prompt
	}
	return s
}

// View returns the latest reconciled view. Views are rebuilt rather than
// mutated, so the returned value is safe to read without copying.
func (c *Controller) View() reconcile.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []types.ADKMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.ADKMessage, len(c.messages))
	copy(out, c.messages)
	return out
}
