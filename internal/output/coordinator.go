package output

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/truebasic2011/mercury/internal/queue"
)

const (
	// DefaultIdleWait bounds the sleep after a round that found every queue empty.
	DefaultIdleWait = time.Millisecond
	// popBatch caps the records taken from one queue per round so no thread
	// starves the others.
	popBatch = 256
)

// State is the coordinator's lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateWaitingForStart
	StateDraining
	StateShuttingDown
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaitingForStart:
		return "waiting_for_start"
	case StateDraining:
		return "draining"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of coordinator throughput.
type Stats struct {
	SinkStats
	Rounds     uint64 // drain rounds completed
	IdleRounds uint64 // rounds that found every queue empty
}

// Coordinator is the single consumer of every queue. It owns the layout's
// sinks exclusively from Run until it terminates.
type Coordinator struct {
	rings    []*queue.Ring
	layout   *Layout
	start    <-chan struct{}
	idleWait time.Duration

	state    atomic.Int32
	stopFlag atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	records    atomic.Uint64
	bytes      atomic.Uint64
	rounds     atomic.Uint64
	idleRounds atomic.Uint64
	final      atomic.Pointer[SinkStats]

	warn rate.Sometimes
}

// NewCoordinator creates a coordinator in WaitingForStart. rings[i] is
// drained into layout.Sink(i).
func NewCoordinator(rings []*queue.Ring, layout *Layout, start <-chan struct{}, idleWait time.Duration) *Coordinator {
	if idleWait <= 0 {
		idleWait = DefaultIdleWait
	}
	c := &Coordinator{
		rings:    rings,
		layout:   layout,
		start:    start,
		idleWait: idleWait,
		stopCh:   make(chan struct{}),
		warn:     rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	c.state.Store(int32(StateWaitingForStart))
	return c
}

// State returns the current state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Stop sets the stop flag. The caller must guarantee no producer enqueues
// after this call; the coordinator then drains what is left and terminates.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.stopFlag.Store(true)
		close(c.stopCh)
	})
}

// Run drives the coordinator until Terminated. It must be called once.
func (c *Coordinator) Run() {
	defer c.state.Store(int32(StateTerminated))

	select {
	case <-c.start:
	case <-c.stopCh:
	}
	c.state.Store(int32(StateDraining))
	slog.Debug("output coordinator draining", "queues", len(c.rings))

	timer := time.NewTimer(c.idleWait)
	defer timer.Stop()

	for {
		// the flag must be seen before the round starts so that an empty
		// round proves nothing is left
		stopping := c.stopFlag.Load()
		n := c.drainRound()
		c.rounds.Add(1)
		if n > 0 {
			continue
		}
		c.idleRounds.Add(1)
		if stopping {
			break
		}
		c.flush()
		timer.Reset(c.idleWait)
		select {
		case <-timer.C:
		case <-c.stopCh:
			timer.Stop()
		}
	}

	c.state.Store(int32(StateShuttingDown))
	if err := c.layout.Close(); err != nil {
		slog.Error("closing output failed", "error", err)
	}
	stats := c.layout.Stats()
	c.final.Store(&stats)
	slog.Debug("output coordinator terminated",
		"records", stats.Records, "bytes", stats.Bytes, "dropped", stats.Dropped)
}

// drainRound takes up to popBatch records from every queue in turn and
// returns how many it took.
func (c *Coordinator) drainRound() int {
	total := 0
	for i, r := range c.rings {
		sink := c.layout.Sink(i)
		for range popBatch {
			rec, ok := r.TryPop()
			if !ok {
				break
			}
			total++
			if err := sink.Write(rec); err != nil {
				c.warn.Do(func() {
					slog.Warn("output write failed, records dropped", "thread", i, "error", err)
				})
				continue
			}
			c.records.Add(1)
			c.bytes.Add(uint64(rec.Len()))
		}
	}
	return total
}

func (c *Coordinator) flush() {
	for _, s := range c.layout.Unique() {
		if err := s.Flush(); err != nil {
			c.warn.Do(func() {
				slog.Warn("output flush failed", "error", err)
			})
		}
	}
}

// Stats returns a snapshot. While draining it counts records handed to the
// sinks; once terminated it reports what the sinks actually accepted.
func (c *Coordinator) Stats() Stats {
	s := Stats{
		SinkStats: SinkStats{
			Records: c.records.Load(),
			Bytes:   c.bytes.Load(),
		},
		Rounds:     c.rounds.Load(),
		IdleRounds: c.idleRounds.Load(),
	}
	if final := c.final.Load(); final != nil {
		s.SinkStats = *final
	}
	return s
}
