package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/feynwatch/pkg/adk"
)

// ErrQueueClosed is returned by Publish once the consumer has gone away.
var ErrQueueClosed = errors.New("ingestion queue closed")

// SourceKind identifies the transport that produced a batch.
type SourceKind string

const (
	SourcePoll   SourceKind = "poll"
	SourceStream SourceKind = "stream"
)

// Batch is one delivery from a transport. Polled holds only events the
// poller had not seen before; Total is the length of the snapshot they came
// from. Err is set when the transport hit a terminal condition.
type Batch struct {
	Source SourceKind
	Polled []adk.Event
	Total  int
	Pushed []adk.PushEvent
	Err    error
	At     time.Time
}

// Len returns the number of raw events carried by the batch.
func (b Batch) Len() int {
	return len(b.Polled) + len(b.Pushed)
}

// Queue is the single ingestion channel that every transport of a run
// publishes to. Exactly one goroutine consumes it, so nothing downstream of
// C needs locking.
type Queue struct {
	ch   chan Batch
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int) *Queue {
	if size < 0 {
		size = 0
	}
	return &Queue{
		ch:   make(chan Batch, size),
		done: make(chan struct{}),
	}
}

// Publish blocks until the batch is accepted, ctx is done or the queue is
// closed.
func (q *Queue) Publish(ctx context.Context, b Batch) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// C returns the receive side of the queue. It is never closed; consumers
// select on it together with Done.
func (q *Queue) C() <-chan Batch {
	return q.ch
}

// Done is closed by Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Close stops accepting batches. It is safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
