// internal/state/event.go
package state

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/user/feynwatch/internal/types"
)

// EventStore is a JSONL-backed append-only store of processed events.
// Events are stored per session in sessions/<sessionID>/events.jsonl.
type EventStore struct {
	root  string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEventStore creates a new file-backed EventStore rooted at the given directory.
func NewEventStore(root string) *EventStore {
	return &EventStore{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (e *EventStore) getLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lock, ok := e.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	e.locks[sessionID] = lock
	return lock
}

func (e *EventStore) eventsPath(sessionID string) string {
	return filepath.Join(e.root, "sessions", filepath.Base(sessionID), "events.jsonl")
}

// Append adds events to the session's log in order.
func (e *EventStore) Append(_ context.Context, sessionID string, events ...types.ProcessedEvent) error {
	if len(events) == 0 {
		return nil
	}
	lock := e.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return appendLines(e.eventsPath(sessionID), events...)
}

// Tail returns the last limit events for the session; limit <= 0 returns all.
func (e *EventStore) Tail(_ context.Context, sessionID string, limit int) ([]types.ProcessedEvent, error) {
	lock := e.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	events, err := readLines[types.ProcessedEvent](e.eventsPath(sessionID))
	if err != nil {
		return nil, err
	}
	return tail(events, limit), nil
}

// Count returns the number of events stored for the session.
func (e *EventStore) Count(ctx context.Context, sessionID string) (int64, error) {
	events, err := e.Tail(ctx, sessionID, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}
