package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventsIngestedBySource(t *testing.T) {
	before := testutil.ToFloat64(EventsIngested.WithLabelValues("poll"))
	EventsIngested.WithLabelValues("poll").Add(3)
	if got := testutil.ToFloat64(EventsIngested.WithLabelValues("poll")) - before; got != 3 {
		t.Errorf("expected 3 poll events, got %v", got)
	}
}

func TestBackendConnectedGauge(t *testing.T) {
	BackendConnected.Set(1)
	if testutil.ToFloat64(BackendConnected) != 1 {
		t.Error("expected gauge at 1")
	}
	BackendConnected.Set(0)
	if testutil.ToFloat64(BackendConnected) != 0 {
		t.Error("expected gauge at 0")
	}
}
