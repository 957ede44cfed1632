package workflow

import (
	"strings"

	"github.com/user/feynwatch/internal/normalize"
	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

const (
	reasonTerminal = "terminal"
	reasonIdle     = "idle"
)

const finalStageTitle = "Final Response"

// isTerminal reports whether ev marks the end of the workflow. Polled
// events end it when they come from the feedback agent. Pushed events end
// it only as a step of the feedback stage; the feedback agent's tool calls
// and the job.* boundaries do not, since the push stream is shared and its
// job events carry no session.
func isTerminal(ev types.ProcessedEvent) bool {
	if ev.Source == types.SourcePushed {
		return strings.HasPrefix(ev.Type, "step.") && ev.Title == finalStageTitle
	}
	return normalize.ParseAgent(ev.Author).Terminal()
}

// isRefreshHint reports whether a pushed event should trigger an
// immediate snapshot poll.
func isRefreshHint(ev *adk.PushEvent) bool {
	return ev.Type == "job.end"
}

// detectCompletion returns the completion reason, or "" while the workflow
// is still running. Idle completion needs more than IdleMinEvents polled
// snapshot events. Inactivity is measured against the newest raw event
// timestamp so that suppressed events (root agent chatter) still count as
// activity.
func (c *Controller) detectCompletion(events []types.ProcessedEvent, raw []rawEvent) string {
	for _, ev := range events {
		if isTerminal(ev) {
			return reasonTerminal
		}
	}

	if polledCount(raw) <= c.opts.IdleMinEvents {
		return ""
	}
	var latest int64
	for _, r := range raw {
		ts := rawTimestamp(r)
		if ts > latest {
			latest = ts
		}
	}
	if latest == 0 {
		return ""
	}
	if types.Millis(c.opts.Now())-latest > c.opts.IdleWindow.Milliseconds() {
		return reasonIdle
	}
	return ""
}

func rawTimestamp(r rawEvent) int64 {
	if r.polled != nil {
		return normalize.Millis(r.polled.Timestamp)
	}
	return normalize.Millis(r.pushed.TS)
}

func polledCount(raw []rawEvent) int {
	n := 0
	for _, r := range raw {
		if r.polled != nil {
			n++
		}
	}
	return n
}

func hasTerminalPolled(raw []rawEvent) bool {
	for _, r := range raw {
		if r.polled != nil && normalize.ParseAgent(r.polled.Author).Terminal() {
			return true
		}
	}
	return false
}

// extractFinalMessage prefers the text of the last feedback agent event.
// Failing that it takes the most recent event from any other non-user,
// non-root author that carries plain text.
func extractFinalMessage(raw []rawEvent) (*types.ADKMessage, error) {
	for i := len(raw) - 1; i >= 0; i-- {
		ev := raw[i].polled
		if ev == nil || !normalize.ParseAgent(ev.Author).Terminal() {
			continue
		}
		if text := normalize.TextOf(ev.Parts(), true); strings.TrimSpace(text) != "" {
			return assistantMessage(ev.Author, text), nil
		}
	}

	for i := len(raw) - 1; i >= 0; i-- {
		ev := raw[i].polled
		if ev == nil {
			continue
		}
		switch normalize.ParseAgent(ev.Author) {
		case normalize.AgentUser, normalize.AgentRoot:
			continue
		}
		if text := normalize.TextOf(ev.Parts(), true); strings.TrimSpace(text) != "" {
			return assistantMessage(ev.Author, text), nil
		}
	}
	return nil, ErrNoResponse
}

func assistantMessage(author, text string) *types.ADKMessage {
	return &types.ADKMessage{
		ID:      types.NewMessageID(),
		Content: text,
		Role:    types.RoleAssistant,
		Author:  author,
	}
}
