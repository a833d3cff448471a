// Package admission implements adaptive probabilistic packet admission. Under
// overload, producers shed a fraction of packets before they reach the packet
// processor, so drops never occupy queue capacity.
package admission

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

const (
	// DefaultSeed is the starting percent_accept when adaptive mode is on.
	DefaultSeed = 30
	// DefaultInterval is how often the policy is consulted.
	DefaultInterval = time.Second

	minPercent = 0
	maxPercent = 100
)

// Signal is the overload evidence gathered over one adjustment period.
type Signal struct {
	Offered    uint64 // records offered to the output queues
	Overflowed uint64 // records rejected because a queue was full
}

// Sampler returns cumulative counters; the controller computes per-period deltas.
type Sampler func() Signal

// Policy computes the next admission percentage. Results are clamped to
// [0,100] by the controller, so a policy may overshoot without harm.
type Policy interface {
	Next(current int, s Signal) int
}

// Controller holds percent_accept. Admit is safe for concurrent use by any
// number of producers; staleness is tolerated.
type Controller struct {
	percent atomic.Int32
	policy  Policy
}

// NewController creates a controller seeded with seed percent.
func NewController(seed int, policy Policy) *Controller {
	if policy == nil {
		policy = DefaultAIMD()
	}
	c := &Controller{policy: policy}
	c.Set(seed)
	return c
}

// Percent returns the current admission percentage.
func (c *Controller) Percent() int {
	return int(c.percent.Load())
}

// Set stores p clamped to [0,100].
func (c *Controller) Set(p int) {
	c.percent.Store(int32(clamp(p)))
}

// Admit decides whether one packet proceeds to processing. rng must be owned
// by the calling producer.
func (c *Controller) Admit(rng *rand.Rand) bool {
	p := c.percent.Load()
	switch {
	case p >= maxPercent:
		return true
	case p <= minPercent:
		return false
	default:
		return rng.Int32N(maxPercent) < p
	}
}

// Step applies the policy to one period's signal and returns the new percentage.
func (c *Controller) Step(s Signal) int {
	cur := c.Percent()
	next := clamp(c.policy.Next(cur, s))
	c.percent.Store(int32(next))
	if next != cur {
		slog.Debug("admission percent adjusted",
			"from", cur, "to", next,
			"offered", s.Offered, "overflowed", s.Overflowed)
	}
	return next
}

// Run adjusts the percentage every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration, sample Sampler) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := sample()
			c.Step(Signal{
				Offered:    cur.Offered - last.Offered,
				Overflowed: cur.Overflowed - last.Overflowed,
			})
			last = cur
		}
	}
}

func clamp(p int) int {
	if p < minPercent {
		return minPercent
	}
	if p > maxPercent {
		return maxPercent
	}
	return p
}
