package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestProcessedEventJSONShape(t *testing.T) {
	ev := ProcessedEvent{
		Title:     "Planning Request",
		Data:      "Analyzing request and creating execution plan",
		Timestamp: 1700000000500,
		Author:    "planner_agent",
		TraceInfo: &TraceInfo{StepID: "e1", Duration: 120},
		Status:    StatusSuccess,
		Source:    SourcePolled,
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"traceInfo":{"stepId":"e1","duration":120}`, `"status":"success"`, `"timestamp":1700000000500`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
	if strings.Contains(string(data), `"details"`) {
		t.Errorf("expected empty details to be omitted: %s", data)
	}
}

func TestProcessedEventDuration(t *testing.T) {
	var ev ProcessedEvent
	if ev.Duration() != 0 {
		t.Error("expected zero duration without trace info")
	}
	ev.TraceInfo = &TraceInfo{Duration: 42}
	if ev.Duration() != 42 {
		t.Errorf("expected 42, got %d", ev.Duration())
	}
}
