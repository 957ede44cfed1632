package types

import (
	"github.com/google/uuid"
)

type RunID string
type MessageID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}
