// Package sendqueue implements the outbound send queue (C6): a bounded
// FIFO of encoded frames awaiting transmission by the engine loop.
//
// Grounded on the teacher's conn.Connection.SendMessage /
// outboundQueue: a buffered chan as the FIFO itself, with a select
// against a timer for backpressure. The spec calls for non-blocking
// enqueue (drop the frame rather than ever wait) and a timeout-bounded
// dequeue, so Enqueue uses select+default instead of the teacher's
// select+200ms-timer, and Dequeue exposes both a blocking
// timeout-bounded convenience method and the raw channel for the
// engine's own multiplexed select loop.
package sendqueue

import (
	"time"

	flooderrors "github.com/fludmesh/flud/internal/errors"
)

// DefaultDepth is the typical queue capacity.
const DefaultDepth = 32

// DefaultDequeueTimeout bounds how long Dequeue waits for a frame.
const DefaultDequeueTimeout = 1 * time.Second

// Queue is a bounded FIFO of encoded frames. The zero value is not
// usable; construct with New.
type Queue struct {
	ch chan []byte
}

// New constructs a Queue with the given capacity. A depth <= 0 uses
// DefaultDepth.
func New(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Queue{ch: make(chan []byte, depth)}
}

// Enqueue appends frame to the queue without blocking. If the queue is
// full, frame is dropped and a NoMemoryError is returned.
func (q *Queue) Enqueue(frame []byte) error {
	select {
	case q.ch <- frame:
		return nil
	default:
		return flooderrors.NewNoMemoryError("sendqueue.enqueue", nil)
	}
}

// Dequeue waits up to timeout (DefaultDequeueTimeout if timeout <= 0)
// for a frame. ok is false if the wait timed out with nothing queued.
func (q *Queue) Dequeue(timeout time.Duration) (frame []byte, ok bool) {
	if timeout <= 0 {
		timeout = DefaultDequeueTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame = <-q.ch:
		return frame, true
	case <-timer.C:
		return nil, false
	}
}

// Chan exposes the underlying channel so the engine's cooperative loop
// can multiplex a dequeue into its own select alongside beacon, cache
// GC, and ACK-sweep timers.
func (q *Queue) Chan() <-chan []byte { return q.ch }

// Len reports the number of frames currently queued. Intended for
// tests and diagnostics; len(chan) is inherently racy against
// concurrent senders/receivers, but is adequate for observability.
func (q *Queue) Len() int { return len(q.ch) }
