package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Queue is a bounded background writer in front of a Recorder sink. Enqueue
// never blocks and never fails the caller's primary operation: when the sink
// errors or the buffer is full, the event is counted and reported through the
// logger for out-of-band investigation. Availability is deliberately
// prioritized over strict audit atomicity.
type Queue struct {
	sink    Recorder
	events  chan *Event
	logger  zerolog.Logger
	timeout time.Duration

	dropped  atomic.Uint64
	failed   atomic.Uint64
	wg       sync.WaitGroup
	closing  chan struct{}
	closeOne sync.Once
}

// NewQueue starts a Queue with the given buffer size draining into sink.
func NewQueue(sink Recorder, size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	q := &Queue{
		sink:    sink,
		events:  make(chan *Event, size),
		logger:  logger,
		timeout: 5 * time.Second,
		closing: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Record enqueues the event. It returns nil even when the event cannot be
// accepted; the loss is surfaced operationally instead.
func (q *Queue) Record(_ context.Context, e *Event) error {
	select {
	case <-q.closing:
		q.dropped.Add(1)
		q.logger.Error().
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Msg("audit write failure: queue closed, event dropped")
		return nil
	default:
	}

	select {
	case q.events <- e:
	default:
		q.dropped.Add(1)
		q.logger.Error().
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Uint64("dropped_total", q.dropped.Load()).
			Msg("audit write failure: queue full, event dropped")
	}
	return nil
}

// run drains events until closing fires, then empties the buffer and exits.
// q.events is never closed: concurrent Record calls racing a shutdown land in
// the buffer (or drop) instead of panicking on a closed channel.
func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case e := <-q.events:
			q.write(e)
		case <-q.closing:
			for {
				select {
				case e := <-q.events:
					q.write(e)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.sink.Record(ctx, e); err != nil {
		q.failed.Add(1)
		q.logger.Error().
			Err(err).
			Str("event_id", e.ID.String()).
			Str("action", string(e.Action)).
			Str("resource_type", e.ResourceType).
			Uint64("failed_total", q.failed.Load()).
			Msg("audit write failure")
	}
}

// Close stops accepting events and drains the buffer. The context bounds the
// wait for the drain.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOne.Do(func() {
		close(q.closing)
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// A Record past its closing check can still land after the drain loop
	// exits; count those as dropped rather than leaving them buffered.
	for {
		select {
		case e := <-q.events:
			q.dropped.Add(1)
			q.logger.Error().
				Str("action", string(e.Action)).
				Str("resource_type", e.ResourceType).
				Msg("audit write failure: queue closed, event dropped")
		default:
			return nil
		}
	}
}

// Dropped reports events lost to a full or closed queue.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Failed reports events the sink refused.
func (q *Queue) Failed() uint64 { return q.failed.Load() }
