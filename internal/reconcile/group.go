package reconcile

import (
	"math"
	"sort"
	"strings"

	"github.com/user/feynwatch/internal/types"
)

// Stage is a semantic bucket for workflow events.
type Stage string

const (
	StagePlanning    Stage = "Planning"
	StageTransfer    Stage = "Transfer"
	StageSearch      Stage = "Search"
	StageValidation  Stage = "Validation"
	StageGeneration  Stage = "Generation"
	StageCompilation Stage = "Compilation"
	StageResponse    Stage = "Response"
	StageOther       Stage = "Other"
)

// classifyOrder is checked first to last; the first substring found in the
// title wins.
var classifyOrder = []Stage{
	StagePlanning,
	StageTransfer,
	StageSearch,
	StageValidation,
	StageGeneration,
	StageCompilation,
	StageResponse,
}

// Classify assigns a title to exactly one stage by case-sensitive
// substring match.
func Classify(title string) Stage {
	for _, s := range classifyOrder {
		if strings.Contains(title, string(s)) {
			return s
		}
	}
	return StageOther
}

// Stats are latency figures in milliseconds over the members that have a
// known duration.
type Stats struct {
	Count int   `json:"count"`
	Total int64 `json:"total"`
	Avg   int64 `json:"avg"`
	P50   int64 `json:"p50"`
	P95   int64 `json:"p95"`
}

type Group struct {
	Stage  Stage                  `json:"stage"`
	Events []types.ProcessedEvent `json:"events"`
	Stats  Stats                  `json:"stats"`
}

// Start returns the earliest member timestamp.
func (g *Group) Start() int64 {
	var min int64 = math.MaxInt64
	for _, ev := range g.Events {
		if ev.Timestamp < min {
			min = ev.Timestamp
		}
	}
	return min
}

// ComputeStats ignores non-positive durations. Percentiles are nearest-rank:
// sorted[floor(n*q)].
func ComputeStats(durations []int64) Stats {
	var sorted []int64
	for _, d := range durations {
		if d > 0 {
			sorted = append(sorted, d)
		}
	}
	if len(sorted) == 0 {
		return Stats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total int64
	for _, d := range sorted {
		total += d
	}
	return Stats{
		Count: len(sorted),
		Total: total,
		Avg:   int64(math.Round(float64(total) / float64(len(sorted)))),
		P50:   nearestRank(sorted, 0.5),
		P95:   nearestRank(sorted, 0.95),
	}
}

func nearestRank(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(math.Floor(float64(len(sorted)) * q))
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// GroupEvents buckets events by stage and orders the groups by their
// earliest member. Groups that start at the same instant keep the order in
// which their first member arrived.
func GroupEvents(events []types.ProcessedEvent) []Group {
	index := make(map[Stage]int)
	var groups []Group
	for _, ev := range events {
		s := Classify(ev.Title)
		i, ok := index[s]
		if !ok {
			i = len(groups)
			index[s] = i
			groups = append(groups, Group{Stage: s})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}

	for i := range groups {
		durations := make([]int64, 0, len(groups[i].Events))
		for _, ev := range groups[i].Events {
			durations = append(durations, ev.Duration())
		}
		groups[i].Stats = ComputeStats(durations)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Start() < groups[j].Start()
	})
	return groups
}
