// Package state provides filesystem-backed storage for the workflow journal.
package state

import "github.com/user/feynwatch/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*SessionStore)(nil)
var _ types.EventStore = (*EventStore)(nil)
var _ types.TranscriptStore = (*TranscriptStore)(nil)
