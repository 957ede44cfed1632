package reconcile

import (
	"fmt"

	"github.com/user/feynwatch/internal/types"
)

// IdentityKey returns the key that identifies ev as a logical event. index
// is the event's position in the arrival-ordered list and is only used when
// the event carries no step identifier.
func IdentityKey(ev types.ProcessedEvent, index int) string {
	var traceID, stepID string
	if ev.TraceInfo != nil {
		traceID, stepID = ev.TraceInfo.TraceID, ev.TraceInfo.StepID
	}

	if ev.Source == types.SourcePushed {
		if traceID != "" || stepID != "" {
			return fmt.Sprintf("push:%s/%s/%s", traceID, stepID, ev.Type)
		}
	} else if stepID != "" {
		return "step:" + stepID
	}
	return fmt.Sprintf("%s#%d", ev.Author, index)
}

// plannerKey collapses polled planner events that the backend re-emits with
// a fresh id on every snapshot.
func plannerKey(ev types.ProcessedEvent) (string, bool) {
	if ev.Source != types.SourcePolled || ev.Author != "planner_agent" {
		return "", false
	}
	return fmt.Sprintf("planner:%s|%s|%d", ev.Author, ev.Title, ev.Timestamp/1000), true
}

// Dedupe keeps the first occurrence of every identity key and returns the
// survivors in their original order together with the number dropped.
func Dedupe(events []types.ProcessedEvent) ([]types.ProcessedEvent, int) {
	seen := make(map[string]struct{}, len(events))
	out := make([]types.ProcessedEvent, 0, len(events))
	dups := 0

	for i, ev := range events {
		keys := []string{IdentityKey(ev, i)}
		if k, ok := plannerKey(ev); ok {
			keys = append(keys, k)
		}

		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
				break
			}
		}
		if dup {
			dups++
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, ev)
	}
	return out, dups
}
