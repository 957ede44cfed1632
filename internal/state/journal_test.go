package state

import (
	"context"
	"testing"
	"time"

	"github.com/user/feynwatch/internal/types"
)

func TestJournalRecord(t *testing.T) {
	j := OpenJournal(t.TempDir())
	ctx := context.Background()

	rec := &types.SessionRecord{SessionID: "s1", RunID: types.NewRunID(), Prompt: "draw", Status: "idle", EventCount: 1, CreatedAt: time.Now()}
	events := []types.ProcessedEvent{{Title: "Final Response", Author: "feedback_agent", Source: types.SourcePolled}}
	msgs := []types.ADKMessage{
		{ID: types.NewMessageID(), Role: types.RoleUser, Content: "draw"},
		{ID: types.NewMessageID(), Role: types.RoleAssistant, Content: "Here is your diagram."},
	}
	if err := j.Record(ctx, rec, events, msgs); err != nil {
		t.Fatal(err)
	}

	if _, err := j.Sessions.Get(ctx, "s1"); err != nil {
		t.Errorf("expected session record: %v", err)
	}
	if n, _ := j.Events.Count(ctx, "s1"); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}

	all, err := j.Transcripts.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[1].Content != "Here is your diagram." {
		t.Errorf("unexpected transcript %+v", all)
	}
	last, _ := j.Transcripts.List(ctx, 1)
	if len(last) != 1 || last[0].Role != types.RoleAssistant {
		t.Errorf("expected last message only, got %+v", last)
	}
}
