// internal/state/session.go
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/user/feynwatch/internal/types"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore is a JSON-file-backed index of finished workflows, stored in
// sessions/sessions.json and keyed by backend session id.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a new file-backed SessionStore rooted at the given directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionStore) loadIndex() (map[string]*types.SessionRecord, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*types.SessionRecord), nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var records []*types.SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}

	index := make(map[string]*types.SessionRecord, len(records))
	for _, rec := range records {
		index[rec.SessionID] = rec
	}
	return index, nil
}

func (s *SessionStore) saveIndex(index map[string]*types.SessionRecord) error {
	data, err := json.MarshalIndent(sortedRecords(index), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	return writeAtomic(s.indexPath(), data)
}

// sortedRecords orders records newest first.
func sortedRecords(index map[string]*types.SessionRecord) []*types.SessionRecord {
	records := make([]*types.SessionRecord, 0, len(index))
	for _, rec := range index {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].SessionID < records[j].SessionID
	})
	return records
}

// Put inserts or replaces the record for rec.SessionID.
func (s *SessionStore) Put(_ context.Context, rec *types.SessionRecord) error {
	if rec.SessionID == "" {
		return errors.New("put session: empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	index[rec.SessionID] = rec
	return s.saveIndex(index)
}

// Get returns the record for sessionID, or an error wrapping ErrNotFound.
func (s *SessionStore) Get(_ context.Context, sessionID string) (*types.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	rec, ok := index[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return rec, nil
}

// List returns all records, newest first.
func (s *SessionStore) List(_ context.Context) ([]*types.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	return sortedRecords(index), nil
}

// writeAtomic writes data to a temp file next to path and renames it into
// place.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
