package events

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// MetricsRecorder receives queue throughput observations. Implementations
// must tolerate concurrent calls. A nil MetricsRecorder is valid — Queue
// treats it as "no metrics wired" and skips recording.
type MetricsRecorder interface {
	EventPublished(kind string)
	EventDropped(kind string)
	SetQueueDepth(depth float64)
}

// Queue is a bounded, many-producers/one-consumer FIFO of Events. A single
// buffered channel gives us the ordering guarantee spec.md §4.1 asks for
// (events from one producer are observed in push order; the bound is
// finite): Push blocks once the buffer is full, WaitPop blocks until an
// event is available, TryPop never blocks.
type Queue struct {
	ch       chan Event
	logger   zerolog.Logger
	recorder MetricsRecorder

	pushed int64
	popped int64
	closed atomic.Bool
}

// NewQueue creates a bounded event queue with the given buffer size.
// recorder may be nil if no Prometheus instrumentation is wired.
func NewQueue(bufferSize int, logger zerolog.Logger, recorder MetricsRecorder) *Queue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Queue{
		ch:       make(chan Event, bufferSize),
		logger:   logger.With().Str("component", "event_queue").Logger(),
		recorder: recorder,
	}
}

// Push enqueues an event, blocking the caller only if the bound is reached.
// It is safe to call from any number of producer goroutines.
func (q *Queue) Push(event Event) {
	if q.closed.Load() {
		q.logger.Warn().Str("kind", string(event.Kind())).Msg("push after close, event dropped")
		if q.recorder != nil {
			q.recorder.EventDropped(string(event.Kind()))
		}
		return
	}
	q.ch <- event
	atomic.AddInt64(&q.pushed, 1)
	if q.recorder != nil {
		q.recorder.EventPublished(string(event.Kind()))
		q.recorder.SetQueueDepth(float64(len(q.ch)))
	}
}

// WaitPop blocks until an event is available or ctx is canceled. It returns
// ok == false only when ctx was canceled first. There must be exactly one
// caller of WaitPop/TryPop — the Engine Core's loop.
func (q *Queue) WaitPop(ctx context.Context) (event Event, ok bool) {
	select {
	case event := <-q.ch:
		atomic.AddInt64(&q.popped, 1)
		if q.recorder != nil {
			q.recorder.SetQueueDepth(float64(len(q.ch)))
		}
		return event, true
	case <-ctx.Done():
		return nil, false
	}
}

// Sender exposes the send-only side of the underlying channel for
// producers (the Scripting Interface, market-data handlers) that post
// events directly rather than through Push. Bypassing Push means these
// sends are not reflected in EventPublished/dropped-after-close metrics;
// callers that need those should use Push instead.
func (q *Queue) Sender() chan<- Event {
	return q.ch
}

// TryPop returns immediately: an event and true if one was queued, or the
// zero value and false if the queue was empty.
func (q *Queue) TryPop() (Event, bool) {
	select {
	case event := <-q.ch:
		atomic.AddInt64(&q.popped, 1)
		return event, true
	default:
		return nil, false
	}
}

// Depth reports the number of events currently buffered.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Metrics returns cumulative push/pop counts, for the Prometheus exporter.
func (q *Queue) Metrics() (pushed, popped int64) {
	return atomic.LoadInt64(&q.pushed), atomic.LoadInt64(&q.popped)
}

// Close marks the queue closed; further Push calls are logged and dropped
// rather than panicking on a closed channel. It does not unblock an
// in-flight WaitPop — callers push a ShutdownEvent to do that.
func (q *Queue) Close() {
	q.closed.Store(true)
}
