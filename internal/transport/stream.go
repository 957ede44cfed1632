package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/user/feynwatch/internal/metrics"
	"github.com/user/feynwatch/pkg/adk"
)

var errStreamClosed = errors.New("event stream closed by server")

// OpenFunc opens the push stream, resuming after lastEventID when set.
type OpenFunc func(ctx context.Context, lastEventID string) (io.ReadCloser, error)

// StreamStatus is reported on every connect and disconnect. Attempts counts
// consecutive failed connections and resets on a successful connect.
type StreamStatus struct {
	Connected bool
	Attempts  int
	Exhausted bool
	Err       error
}

type StreamOptions struct {
	ReconnectDelay time.Duration
	MaxReconnects  int
	OnStatus       func(StreamStatus)
}

func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		ReconnectDelay: 3 * time.Second,
		MaxReconnects:  5,
	}
}

// Stream is the push-stream client. It publishes every decoded event as its
// own batch and reconnects with a fixed delay until MaxReconnects
// consecutive failures, after which it reports Exhausted and stops.
type Stream struct {
	open   OpenFunc
	queue  *Queue
	opts   StreamOptions
	retry  *RetryPolicy
	logger *slog.Logger

	mu     sync.Mutex
	lastID string
}

func NewStream(open OpenFunc, queue *Queue, opts StreamOptions) *Stream {
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = DefaultStreamOptions().MaxReconnects
	}
	return &Stream{
		open:  open,
		queue: queue,
		opts:  opts,
		retry: &RetryPolicy{
			MaxAttempts:  opts.MaxReconnects,
			InitialDelay: opts.ReconnectDelay,
			Multiplier:   1.0,
			MaxDelay:     opts.ReconnectDelay,
		},
		logger: slog.Default().With("component", "stream"),
	}
}

// LastEventID returns the id of the last frame received.
func (s *Stream) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Run connects and consumes the stream until ctx is done or reconnects are
// exhausted. It always returns nil so that a dead stream never tears down
// the sibling poller.
func (s *Stream) Run(ctx context.Context) error {
	attempts := 0
	for {
		body, err := s.open(ctx, s.LastEventID())
		if err == nil {
			attempts = 0
			s.report(StreamStatus{Connected: true})
			err = s.consume(ctx, body)
			body.Close()
		}
		if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
			return nil
		}

		attempts++
		exhausted := !s.retry.ShouldRetry(err, attempts+1)
		s.report(StreamStatus{Attempts: attempts, Exhausted: exhausted, Err: err})
		if exhausted {
			s.logger.Warn("event stream gave up", "attempts", attempts, "error", err)
			return nil
		}

		metrics.StreamReconnects.Inc()
		delay := s.retry.NextDelay(attempts)
		s.logger.Debug("event stream disconnected", "attempts", attempts, "retry_in", delay, "error", err)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (s *Stream) consume(ctx context.Context, body io.Reader) error {
	r := adk.NewReader(body)
	for {
		frame, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errStreamClosed
			}
			return err
		}
		if frame.ID != "" {
			s.mu.Lock()
			s.lastID = frame.ID
			s.mu.Unlock()
		}

		ev, err := adk.DecodePush(frame)
		if err != nil {
			s.logger.Debug("skipping push frame", "id", frame.ID, "error", err)
			continue
		}
		batch := Batch{Source: SourceStream, Pushed: []adk.PushEvent{ev}, At: time.Now()}
		if err := s.queue.Publish(ctx, batch); err != nil {
			return err
		}
	}
}

func (s *Stream) report(status StreamStatus) {
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(status)
	}
}
