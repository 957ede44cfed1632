package state

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/user/feynwatch/internal/types"
)

// TranscriptStore keeps every chat message ever exchanged in a single
// transcript.jsonl. Messages are never rewritten.
type TranscriptStore struct {
	root string
	mu   sync.Mutex
}

func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{root: root}
}

func (t *TranscriptStore) path() string {
	return filepath.Join(t.root, "transcript.jsonl")
}

func (t *TranscriptStore) Append(_ context.Context, msg types.ADKMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return appendLines(t.path(), msg)
}

// List returns the last limit messages; limit <= 0 returns all.
func (t *TranscriptStore) List(_ context.Context, limit int) ([]types.ADKMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msgs, err := readLines[types.ADKMessage](t.path())
	if err != nil {
		return nil, err
	}
	return tail(msgs, limit), nil
}
