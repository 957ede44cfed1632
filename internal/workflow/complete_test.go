package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/user/feynwatch/internal/types"
	"github.com/user/feynwatch/pkg/adk"
)

func polledRaw(events ...adk.Event) []rawEvent {
	raw := make([]rawEvent, len(events))
	for i := range events {
		raw[i] = rawEvent{polled: &events[i]}
	}
	return raw
}

func TestExtractPrefersLastFeedback(t *testing.T) {
	raw := polledRaw(
		textEvent("e1", "feedback_agent", "draft", 1),
		textEvent("e2", "diagram_generator_agent", "code", 2),
		textEvent("e3", "feedback_agent", "final", 3),
		textEvent("e4", "tikz_validator_agent", "compiled", 4),
	)
	msg, err := extractFinalMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "final" || msg.Author != "feedback_agent" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestExtractFallbackSkipsUserAndRoot(t *testing.T) {
	raw := polledRaw(
		textEvent("e1", "kb_retriever_agent", "examples found", 1),
		adk.Event{ID: "e2", Author: "physics_validator_agent", Content: &adk.Content{Parts: []adk.Part{
			{Text: "calling", FunctionCall: &adk.FunctionCall{Name: "check"}},
		}}},
		textEvent("e3", "root_agent", "routing", 3),
		textEvent("e4", "user", "draw it", 4),
	)
	msg, err := extractFinalMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "examples found" {
		t.Errorf("expected kb retriever text, got %q", msg.Content)
	}
}

func TestExtractNoResponse(t *testing.T) {
	raw := polledRaw(textEvent("e1", "root_agent", "hi", 1))
	raw = append(raw, rawEvent{pushed: &adk.PushEvent{Type: "job.end"}})
	if _, err := extractFinalMessage(raw); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestDetectCompletion(t *testing.T) {
	now := time.Unix(1700000100, 0)
	opts := testOptions()
	opts.Now = func() time.Time { return now }
	opts.IdleWindow = 60 * time.Second
	opts.IdleMinEvents = 5
	c := New(&fakeBackend{}, opts)

	feedback := []types.ProcessedEvent{{Author: "feedback_agent", Title: "Final Response", Source: types.SourcePolled}}
	if got := c.detectCompletion(feedback, nil); got != reasonTerminal {
		t.Errorf("expected terminal, got %q", got)
	}

	pushedFeedback := []types.ProcessedEvent{{Author: "feedback_agent", Type: "tool.start", Source: types.SourcePushed}}
	if got := c.detectCompletion(pushedFeedback, nil); got != "" {
		t.Errorf("expected pushed feedback tool event not to complete, got %q", got)
	}
	pushedStep := []types.ProcessedEvent{{Author: "feedback_agent", Type: "step.feedback", Title: "Final Response", Source: types.SourcePushed}}
	if got := c.detectCompletion(pushedStep, nil); got != reasonTerminal {
		t.Errorf("expected pushed feedback step to complete, got %q", got)
	}
	jobEnd := []types.ProcessedEvent{{Author: "stream", Type: "job.end", Title: "Workflow Finished", Source: types.SourcePushed}}
	if got := c.detectCompletion(jobEnd, nil); got != "" {
		t.Errorf("expected job.end alone not to complete, got %q", got)
	}

	var raw []rawEvent
	for i := 0; i < 6; i++ {
		raw = append(raw, polledRaw(textEvent("e", "planner_agent", "", 1700000000+float64(i)))...)
	}
	if got := c.detectCompletion(nil, raw); got != reasonIdle {
		t.Errorf("expected idle completion, got %q", got)
	}
	if got := c.detectCompletion(nil, raw[:5]); got != "" {
		t.Errorf("expected no completion at exactly the minimum events, got %q", got)
	}

	mixed := append([]rawEvent{}, raw[:5]...)
	for i := 0; i < 3; i++ {
		mixed = append(mixed, rawEvent{pushed: &adk.PushEvent{Type: "tool.end", TS: 1700000010}})
	}
	if got := c.detectCompletion(nil, mixed); got != "" {
		t.Errorf("expected pushed events not to count toward the minimum, got %q", got)
	}

	fresh := polledRaw(textEvent("e", "planner_agent", "", 1700000090))
	if got := c.detectCompletion(nil, append(raw, fresh...)); got != "" {
		t.Errorf("expected recent activity to block idle completion, got %q", got)
	}
}

func TestExtractKeepsUntrimmedContent(t *testing.T) {
	raw := polledRaw(textEvent("e1", "feedback_agent", "  Here is your diagram.\n", 1))
	msg, err := extractFinalMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "  Here is your diagram.\n" {
		t.Errorf("expected content as sent, got %q", msg.Content)
	}

	blank := polledRaw(
		textEvent("e1", "planner_agent", "plan", 1),
		textEvent("e2", "feedback_agent", " \n ", 2),
	)
	msg, err = extractFinalMessage(blank)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "plan" {
		t.Errorf("expected whitespace-only feedback skipped, got %q", msg.Content)
	}
}

func TestUserMessage(t *testing.T) {
	if UserMessage(nil) != "" {
		t.Error("expected empty message for nil")
	}
	if UserMessage(ErrCancelled) != "Request cancelled." {
		t.Errorf("unexpected %q", UserMessage(ErrCancelled))
	}
	if got := UserMessage(errors.New("boom")); got != "Sorry, something went wrong: boom" {
		t.Errorf("unexpected %q", got)
	}
}
