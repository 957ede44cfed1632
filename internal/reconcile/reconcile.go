// Package reconcile merges normalized events from both transports into one
// deduplicated, stage-grouped view. Every function is pure: the same input
// always yields the same view, so callers recompute from scratch on each
// batch instead of patching a previous result.
package reconcile

import (
	"github.com/user/feynwatch/internal/types"
)

// View is the reconciled output for one workflow.
type View struct {
	Events     []types.ProcessedEvent `json:"events"`
	Groups     []Group                `json:"groups"`
	Tools      []ToolMetric           `json:"tools"`
	Duplicates int                    `json:"duplicates"`
}

// Reconcile dedupes events (arrival order), groups them and derives tool
// metrics.
func Reconcile(events []types.ProcessedEvent) View {
	unique, dups := Dedupe(events)
	return View{
		Events:     unique,
		Groups:     GroupEvents(unique),
		Tools:      ToolMetrics(unique),
		Duplicates: dups,
	}
}
