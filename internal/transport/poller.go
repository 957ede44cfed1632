package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/feynwatch/internal/metrics"
	"github.com/user/feynwatch/pkg/adk"
)

// FetchFunc returns the full event list of the current session snapshot.
type FetchFunc func(ctx context.Context) ([]adk.Event, error)

type PollerOptions struct {
	Interval    time.Duration
	StartDelay  time.Duration
	MaxInterval time.Duration
	Backoff     float64
}

// DefaultPollerOptions polls every 2s after a 5s head start, backing off to
// 10s on errors.
func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		Interval:    2 * time.Second,
		StartDelay:  5 * time.Second,
		MaxInterval: 10 * time.Second,
		Backoff:     2.0,
	}
}

// Poller turns replayed session snapshots into a stream of new events. The
// backend returns the whole history on every fetch; the poller remembers
// which events it already delivered so consumers only see each one once.
type Poller struct {
	fetch  FetchFunc
	queue  *Queue
	opts   PollerOptions
	retry  *RetryPolicy
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewPoller(fetch FetchFunc, queue *Queue, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollerOptions().Interval
	}
	return &Poller{
		fetch: fetch,
		queue: queue,
		opts:  opts,
		retry: &RetryPolicy{
			InitialDelay: opts.Interval,
			Multiplier:   opts.Backoff,
			MaxDelay:     opts.MaxInterval,
		},
		logger: slog.Default().With("component", "poller"),
		seen:   make(map[string]struct{}),
	}
}

// PollOnce fetches one snapshot and returns the events not delivered before.
// It does not publish.
func (p *Poller) PollOnce(ctx context.Context) (Batch, error) {
	events, err := p.fetch(ctx)
	if err != nil {
		return Batch{}, err
	}
	return p.delta(events), nil
}

func (p *Poller) delta(events []adk.Event) Batch {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh []adk.Event
	for i, ev := range events {
		key := ev.ID
		if key == "" {
			key = fmt.Sprintf("%s#%d", ev.Author, i)
		}
		if _, ok := p.seen[key]; ok {
			continue
		}
		p.seen[key] = struct{}{}
		fresh = append(fresh, ev)
	}
	return Batch{Source: SourcePoll, Polled: fresh, Total: len(events), At: time.Now()}
}

// Run waits StartDelay, then polls until ctx is done. A batch is published
// on every successful fetch, even when it carries no new events, so the
// consumer gets a regular tick for idle detection. A permanent error (an
// expired session) is published as Batch.Err and ends the loop. Run only
// returns nil; failures are reported through the queue.
func (p *Poller) Run(ctx context.Context) error {
	if !sleep(ctx, p.opts.StartDelay) {
		return nil
	}

	failures := 0
	for {
		delay := p.opts.Interval
		batch, err := p.PollOnce(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			failures++
			metrics.PollErrors.Inc()
			if !p.retry.ShouldRetry(err, failures) {
				p.logger.Error("poll failed permanently", "error", err)
				_ = p.queue.Publish(ctx, Batch{Source: SourcePoll, Err: err, At: time.Now()})
				return nil
			}
			delay = p.retry.NextDelay(failures)
			p.logger.Warn("poll failed", "error", err, "failures", failures, "retry_in", delay)
		default:
			failures = 0
			if err := p.queue.Publish(ctx, batch); err != nil {
				return nil
			}
		}
		if !sleep(ctx, delay) {
			return nil
		}
	}
}
