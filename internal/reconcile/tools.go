package reconcile

import (
	"math"
	"sort"
	"strings"

	"github.com/user/feynwatch/internal/types"
)

type ToolMetric struct {
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Calls          int      `json:"calls"`
	TotalDuration  int64    `json:"totalDuration"`
	AvgDuration    int64    `json:"avgDuration"`
	P95Duration    int64    `json:"p95Duration"`
	P99Duration    int64    `json:"p99Duration"`
	Errors         int      `json:"errorCount"`
	SuccessRate    float64  `json:"successRate"`
	LastUsed       int64    `json:"lastUsed"`
	CorrelationIDs []string `json:"correlationIds,omitempty"`
}

// ToolCategory buckets a tool by name.
func ToolCategory(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "mcp"), strings.Contains(n, "particle"), strings.Contains(n, "physics"):
		return "mcp"
	case strings.Contains(n, "search"), strings.Contains(n, "kb"), strings.Contains(n, "retriev"):
		return "search"
	case strings.Contains(n, "valid"), strings.Contains(n, "check"):
		return "validation"
	case strings.Contains(n, "generat"), strings.Contains(n, "diagram"), strings.Contains(n, "tikz"):
		return "generation"
	case strings.Contains(n, "compil"), strings.Contains(n, "latex"):
		return "compilation"
	}
	return "analysis"
}

// ToolMetrics aggregates finished tool calls (every tool-tagged event except
// tool.start) per tool name, ordered by call count then name.
func ToolMetrics(events []types.ProcessedEvent) []ToolMetric {
	byName := make(map[string][]types.ProcessedEvent)
	for _, ev := range events {
		if ev.TraceInfo == nil || ev.TraceInfo.Tool == "" || ev.Type == "tool.start" {
			continue
		}
		byName[ev.TraceInfo.Tool] = append(byName[ev.TraceInfo.Tool], ev)
	}

	out := make([]ToolMetric, 0, len(byName))
	for name, calls := range byName {
		m := ToolMetric{Name: name, Category: ToolCategory(name), Calls: len(calls)}

		var durations []int64
		seenTrace := make(map[string]struct{})
		successes := 0
		for _, ev := range calls {
			if d := ev.Duration(); d > 0 {
				durations = append(durations, d)
			}
			switch ev.Status {
			case types.StatusError:
				m.Errors++
			case types.StatusSuccess:
				successes++
			}
			if ev.Timestamp > m.LastUsed {
				m.LastUsed = ev.Timestamp
			}
			if id := ev.TraceInfo.TraceID; id != "" {
				if _, ok := seenTrace[id]; !ok {
					seenTrace[id] = struct{}{}
					m.CorrelationIDs = append(m.CorrelationIDs, id)
				}
			}
		}

		stats := ComputeStats(durations)
		m.TotalDuration = stats.Total
		m.AvgDuration = stats.Avg
		m.P95Duration = stats.P95
		if stats.Count > 0 {
			sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
			m.P99Duration = nearestRank(durations, 0.99)
		}
		m.SuccessRate = math.Round(float64(successes)/float64(len(calls))*1000) / 10
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Name < out[j].Name
	})
	return out
}
