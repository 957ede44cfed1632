package types

import (
	"context"
)

type SessionStore interface {
	Put(ctx context.Context, record *SessionRecord) error
	Get(ctx context.Context, sessionID string) (*SessionRecord, error)
	List(ctx context.Context) ([]*SessionRecord, error)
}

type EventStore interface {
	Append(ctx context.Context, sessionID string, events ...ProcessedEvent) error
	Tail(ctx context.Context, sessionID string, limit int) ([]ProcessedEvent, error)
	Count(ctx context.Context, sessionID string) (int64, error)
}

type TranscriptStore interface {
	Append(ctx context.Context, msg ADKMessage) error
	List(ctx context.Context, limit int) ([]ADKMessage, error)
}
