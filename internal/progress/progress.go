// Package progress delivers per-file progress events to a caller supplied
// callback without letting a slow callback stall the pipeline.
package progress

import (
	"sync"

	"github.com/noteport/noteport/internal/types"
)

// Event is emitted once for every file an operation finishes with.
type Event struct {
	Operation string
	Current   int
	Total     int
	Path      string
	Result    types.FileResult
}

// Percent is the completed share in the range [0, 100].
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 100
	}
	return float64(e.Current) * 100 / float64(e.Total)
}

// Func receives progress events.
type Func func(Event)

// Reporter queues events and hands them to the callback from its own
// goroutine. Emit never blocks on the callback and never drops an event;
// Close waits until every queued event has been delivered.
type Reporter struct {
	fn Func

	mu      sync.Mutex
	queue   []Event
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	started bool
}

// NewReporter creates a reporter for fn. A nil fn yields a reporter whose
// Emit is a no-op.
func NewReporter(fn Func) *Reporter {
	return &Reporter{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Emit queues e for delivery.
func (r *Reporter) Emit(e Event) {
	if r == nil || r.fn == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, e)
	if !r.started {
		r.started = true
		go r.loop()
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reporter) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, e := range batch {
			r.deliver(e)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-r.wake
		}
	}
}

func (r *Reporter) deliver(e Event) {
	defer func() {
		// Callback panics stay on this goroutine.
		_ = recover()
	}()
	r.fn(e)
}

// Close flushes pending events and stops the delivery goroutine.
func (r *Reporter) Close() {
	if r == nil || r.fn == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	r.mu.Unlock()

	if !started {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
	<-r.done
}
