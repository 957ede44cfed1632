package state

import (
	"context"
	"fmt"

	"github.com/user/feynwatch/internal/types"
)

// Journal records finished workflows across the three stores.
type Journal struct {
	Sessions    *SessionStore
	Events      *EventStore
	Transcripts *TranscriptStore
}

// OpenJournal returns a journal rooted at dataDir. Nothing is created until
// the first write.
func OpenJournal(dataDir string) *Journal {
	return &Journal{
		Sessions:    NewSessionStore(dataDir),
		Events:      NewEventStore(dataDir),
		Transcripts: NewTranscriptStore(dataDir),
	}
}

// Record stores the session record, its final event list and the messages
// of the exchange. Events are written before the index entry so that a
// listed session always has its events on disk.
func (j *Journal) Record(ctx context.Context, rec *types.SessionRecord, events []types.ProcessedEvent, msgs []types.ADKMessage) error {
	if err := j.Events.Append(ctx, rec.SessionID, events...); err != nil {
		return fmt.Errorf("journal events: %w", err)
	}
	for _, m := range msgs {
		if err := j.Transcripts.Append(ctx, m); err != nil {
			return fmt.Errorf("journal transcript: %w", err)
		}
	}
	if err := j.Sessions.Put(ctx, rec); err != nil {
		return fmt.Errorf("journal session: %w", err)
	}
	return nil
}
