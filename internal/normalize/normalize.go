// Package normalize converts polled session events and pushed stream events
// into the canonical ProcessedEvent shape.
package normalize

import (
	"math"
	"strings"

	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

// Millis converts a backend timestamp in seconds to milliseconds.
func Millis(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// Polled normalizes one session-replay event. The second result is false
// when the event has no rule (plain root_agent chatter, user input, unknown
// authors).
func Polled(ev adk.Event) (types.ProcessedEvent, bool) {
	out := types.ProcessedEvent{
		Timestamp: Millis(ev.Timestamp),
		Author:    ev.Author,
		Source:    types.SourcePolled,
	}
	if ev.ID != "" || ev.InvocationID != "" {
		out.TraceInfo = &types.TraceInfo{TraceID: ev.InvocationID, StepID: ev.ID}
	}

	agent := ParseAgent(ev.Author)
	if agent == AgentRoot {
		if ev.Actions == nil || ev.Actions.TransferToAgent == "" {
			return types.ProcessedEvent{}, false
		}
		out.Title = "Agent Transfer"
		out.Data = transferData(ev.Actions.TransferToAgent)
		return out, true
	}

	r, ok := agentRules[agent]
	if !ok {
		return types.ProcessedEvent{}, false
	}
	out.Title = r.title
	out.Data = r.data
	if r.detail != nil {
		out.Details = r.detail(&ev)
	}
	return out, true
}

// Pushed normalizes one push-stream event. Events without a type are
// dropped.
func Pushed(ev adk.PushEvent) (types.ProcessedEvent, bool) {
	if ev.Type == "" {
		return types.ProcessedEvent{}, false
	}

	out := types.ProcessedEvent{
		Timestamp: Millis(ev.TS),
		Author:    ev.Agent,
		Source:    types.SourcePushed,
		Type:      ev.Type,
		Status:    pushStatus(ev.Status),
	}
	if out.Author == "" {
		out.Author = "stream"
	}
	if ev.TraceID != "" || ev.StepID != "" || ev.Tool != "" || ev.LatencyMS > 0 {
		out.TraceInfo = &types.TraceInfo{
			TraceID:  ev.TraceID,
			StepID:   ev.StepID,
			Tool:     ev.Tool,
			Duration: int64(math.Round(ev.LatencyMS)),
		}
	}

	switch {
	case ev.Type == "job.start":
		out.Title = "Workflow Started"
		out.Data = "Agent workflow started"
	case ev.Type == "job.end":
		out.Title = "Workflow Finished"
		out.Data = "Agent workflow finished"
	case ev.Type == "tool.start":
		out.Title = "Tool Call: " + toolName(ev)
		out.Data = "Calling " + toolName(ev)
		if out.Status == "" {
			out.Status = types.StatusPending
		}
	case ev.Type == "tool.end":
		out.Title = "Tool Result: " + toolName(ev)
		out.Data = toolName(ev) + " finished"
		if out.Status == types.StatusError && ev.Message != "" {
			out.Details = ev.Message
		}
	case strings.HasPrefix(ev.Type, "step."):
		if !stepEvent(&out, ev) {
			genericEvent(&out, ev)
		}
	default:
		genericEvent(&out, ev)
	}

	if summary := ev.Summary(); summary != "" {
		out.Data = summary
	}
	return out, true
}

func stepEvent(out *types.ProcessedEvent, ev adk.PushEvent) bool {
	if title, ok := stepTitles[strings.TrimPrefix(ev.Type, "step.")]; ok {
		out.Title = title
		out.Data = ev.Message
		if out.Data == "" {
			if r, ok := agentRules[ParseAgent(ev.Agent)]; ok && r.title == title {
				out.Data = r.data
			} else {
				out.Data = "Processing..."
			}
		}
		return true
	}
	if r, ok := agentRules[ParseAgent(ev.Agent)]; ok {
		out.Title = r.title
		out.Data = r.data
		return true
	}
	return false
}

func genericEvent(out *types.ProcessedEvent, ev adk.PushEvent) {
	out.Title = ev.Type
	out.Data = ev.Message
	if out.Data == "" {
		out.Data = "Processing..."
	}
}

func toolName(ev adk.PushEvent) string {
	if ev.Tool == "" {
		return "unknown tool"
	}
	return ev.Tool
}

func pushStatus(s string) types.EventStatus {
	switch s {
	case "ok", "success":
		return types.StatusSuccess
	case "err", "error":
		return types.StatusError
	case "pending":
		return types.StatusPending
	}
	return ""
}
