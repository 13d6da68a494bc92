package bridge

import (
	"sync"

	"github.com/roach88/nbridge/internal/wire"
)

// Delivery is what a receiver is invoked with: a native message, or the
// error that terminated the call instead.
type Delivery struct {
	Message wire.Message
	Err     error
}

// Receiver handles deliveries for one domain. Receivers always run on the
// main context, never on a native thread.
type Receiver func(Delivery)

// event is one pending receiver invocation.
type event struct {
	domain   string
	receiver Receiver
	delivery Delivery
}

// eventQueue is a thread-safe FIFO of receiver invocations.
//
// Native threads enqueue; the main context dequeues. The queue is unbounded
// so that a native callback never blocks on a slow main loop.
//
// The signal channel (buffered, size 1) lets Run wait with select so it
// stays responsive to context cancellation.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Coalesce: one pending signal is enough to wake the loop.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Release the slot so the receiver closure and payload can be collected.
	q.events[0] = event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. The
// channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
