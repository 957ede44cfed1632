package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/user/feynwatch/internal/reconcile"
	"github.com/user/feynwatch/internal/types"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle            State = "idle"
	StateSessionCreating State = "session_creating"
	StateActive          State = "active"
	StateCompleting      State = "completing"
	StateError           State = "error"
	StateCancelled       State = "cancelled"
)

// Running reports whether a run is in flight in state s.
func (s State) Running() bool {
	switch s {
	case StateSessionCreating, StateActive, StateCompleting:
		return true
	}
	return false
}

// Transport is the channel currently feeding an active workflow.
type Transport string

const (
	TransportNone    Transport = ""
	TransportSSE     Transport = "sse"
	TransportPolling Transport = "polling"
)

// Run tracks one submitted prompt from session creation to its final
// message or error.
type Run struct {
	ID        types.RunID
	SessionID string
	Prompt    string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	userMsg types.ADKMessage
	message *types.ADKMessage
	err     error

	onComplete func(*types.ADKMessage, error)
	onUpdate   func(reconcile.View)
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked once when the run finishes, with
// either the assistant message or the error.
func WithOnComplete(fn func(*types.ADKMessage, error)) RunOption {
	return func(r *Run) { r.onComplete = fn }
}

// WithOnUpdate sets a callback invoked with every recomputed view. It runs on
// the ingestion goroutine and must not block.
func WithOnUpdate(fn func(reconcile.View)) RunOption {
	return func(r *Run) { r.onUpdate = fn }
}

func newRun(prompt string, now time.Time, opts []RunOption) *Run {
	r := &Run{
		ID:        types.NewRunID(),
		Prompt:    prompt,
		StartedAt: now,
		done:      make(chan struct{}),
		userMsg: types.ADKMessage{
			ID:        types.NewMessageID(),
			Content:   prompt,
			Role:      types.RoleUser,
			Timestamp: types.Millis(now),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (r *Run) Result() (*types.ADKMessage, error) {
	select {
	case <-r.done:
		return r.message, r.err
	default:
		return nil, nil
	}
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (*types.ADKMessage, error) {
	select {
	case <-r.done:
		return r.message, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
