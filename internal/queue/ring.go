// Package queue implements the bounded single-producer/single-consumer ring
// that carries finished records from one producer thread to the output
// coordinator.
package queue

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/truebasic2011/mercury/internal/core"
)

// Ring is a fixed-capacity lock-free SPSC queue of records.
//
// tail is written only by the producer and head only by the consumer; both are
// free-running counters, so full (tail-head == cap) and empty (tail == head)
// are distinct without a reserved slot. A Ring must never be shared by more
// than one producer or more than one consumer.
type Ring struct {
	_     cpu.CacheLinePad
	head  atomic.Uint64
	_     cpu.CacheLinePad
	tail  atomic.Uint64
	_     cpu.CacheLinePad
	slots []core.Record
	size  uint64
}

// New creates a ring holding at most capacity records.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d: %w", capacity, core.ErrConfigInvalid)
	}
	return &Ring{
		slots: make([]core.Record, capacity),
		size:  uint64(capacity),
	}, nil
}

// TryPush enqueues rec without blocking. It returns false when the ring is
// full; the caller keeps (and drops) the record.
func (r *Ring) TryPush(rec core.Record) bool {
	t := r.tail.Load()
	if t-r.head.Load() == r.size {
		return false
	}
	r.slots[t%r.size] = rec
	r.tail.Store(t + 1)
	return true
}

// TryPop dequeues the oldest record without blocking.
func (r *Ring) TryPop() (core.Record, bool) {
	h := r.head.Load()
	if h == r.tail.Load() {
		return core.Record{}, false
	}
	i := h % r.size
	rec := r.slots[i]
	r.slots[i] = core.Record{} // release the payload
	r.head.Store(h + 1)
	return rec, true
}

// Len returns the number of queued records. It is exact only when called from
// the producer or the consumer; from elsewhere it is a snapshot.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return int(r.size)
}
