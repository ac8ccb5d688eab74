package transport

import (
	"context"
	"time"

	"github.com/opd-ai/audiolink/wire"
)

// Received couples a decoded packet with its arrival timestamp.
type Received struct {
	Packet  *wire.Packet
	Arrival time.Time
}

// Queue is the bounded hand-off between the ingest goroutine and the
// processing context. When full it drops the oldest entry, not the incoming
// one: for a live stream the freshest data is the most valuable.
//
// Push must only be called from the single ingest goroutine; Pop may be
// called from one consumer.
type Queue struct {
	ch      chan Received
	dropped func(Received)
}

// NewQueue creates a queue holding at most capacity entries. The dropped
// callback, if non-nil, observes every entry discarded by backpressure.
func NewQueue(capacity int, dropped func(Received)) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:      make(chan Received, capacity),
		dropped: dropped,
	}
}

// Push enqueues an entry, evicting the oldest one when the queue is full.
// It reports whether an eviction happened.
func (q *Queue) Push(entry Received) bool {
	select {
	case q.ch <- entry:
		return false
	default:
	}

	// Full: make room by discarding the oldest entry. Single-producer, so
	// the slot freed here cannot be stolen before the send below.
	select {
	case old := <-q.ch:
		if q.dropped != nil {
			q.dropped(old)
		}
	default:
	}

	select {
	case q.ch <- entry:
	default:
		if q.dropped != nil {
			q.dropped(entry)
		}
	}
	return true
}

// Pop blocks until an entry is available or the context is cancelled.
func (q *Queue) Pop(ctx context.Context) (Received, bool) {
	select {
	case entry := <-q.ch:
		return entry, true
	case <-ctx.Done():
		return Received{}, false
	}
}

// TryPop returns an entry without blocking.
func (q *Queue) TryPop() (Received, bool) {
	select {
	case entry := <-q.ch:
		return entry, true
	default:
		return Received{}, false
	}
}

// Depth returns the number of queued entries.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Capacity returns the maximum queue depth.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}
