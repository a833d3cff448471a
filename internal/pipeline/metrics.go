package pipeline

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/truebasic2011/mercury/internal/processor"
	"github.com/truebasic2011/mercury/internal/queue"
	"github.com/truebasic2011/mercury/internal/source"
)

// Counters are the per-thread running counters. Only the owning producer
// writes them; anyone may read.
type Counters struct {
	PacketsRead    atomic.Uint64 // packets returned by the source
	PacketsWritten atomic.Uint64 // records enqueued for output
	BytesWritten   atomic.Uint64 // payload bytes enqueued for output
	PacketsDropped atomic.Uint64 // refused by admission control
	QueueDrops     atomic.Uint64 // records lost to a full queue
	NoRecord       atomic.Uint64 // packets the processor produced nothing for
	KernelPackets  atomic.Uint64 // live capture only, set when the thread exits
	KernelDrops    atomic.Uint64 // live capture only, set when the thread exits
}

// CounterSnapshot is a plain copy of Counters.
type CounterSnapshot struct {
	PacketsRead    uint64
	PacketsWritten uint64
	BytesWritten   uint64
	PacketsDropped uint64
	QueueDrops     uint64
	NoRecord       uint64
	KernelPackets  uint64
	KernelDrops    uint64
}

// Snapshot loads every counter.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		PacketsRead:    c.PacketsRead.Load(),
		PacketsWritten: c.PacketsWritten.Load(),
		BytesWritten:   c.BytesWritten.Load(),
		PacketsDropped: c.PacketsDropped.Load(),
		QueueDrops:     c.QueueDrops.Load(),
		NoRecord:       c.NoRecord.Load(),
		KernelPackets:  c.KernelPackets.Load(),
		KernelDrops:    c.KernelDrops.Load(),
	}
}

// Add returns the field-wise sum.
func (s CounterSnapshot) Add(o CounterSnapshot) CounterSnapshot {
	return CounterSnapshot{
		PacketsRead:    s.PacketsRead + o.PacketsRead,
		PacketsWritten: s.PacketsWritten + o.PacketsWritten,
		BytesWritten:   s.BytesWritten + o.BytesWritten,
		PacketsDropped: s.PacketsDropped + o.PacketsDropped,
		QueueDrops:     s.QueueDrops + o.QueueDrops,
		NoRecord:       s.NoRecord + o.NoRecord,
		KernelPackets:  s.KernelPackets + o.KernelPackets,
		KernelDrops:    s.KernelDrops + o.KernelDrops,
	}
}

// ThreadContext is everything one producer thread owns.
type ThreadContext struct {
	Index     int
	Source    source.Source
	Processor processor.Processor
	Ring      *queue.Ring

	Counters

	rng *rand.Rand
}

func newThreadContext(index int, proc processor.Processor, ring *queue.Ring) *ThreadContext {
	return &ThreadContext{
		Index:     index,
		Processor: proc,
		Ring:      ring,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), uint64(index))),
	}
}
