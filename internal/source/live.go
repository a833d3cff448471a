package source

import (
	"time"

	"golang.org/x/net/bpf"
)

// DefaultPollTimeout bounds how long a live read may block.
const DefaultPollTimeout = 100 * time.Millisecond

// LiveConfig configures one AF_PACKET ring.
type LiveConfig struct {
	Interface   string
	Layout      RingLayout
	FanoutGroup uint16
	Filter      []bpf.RawInstruction
	PollTimeout time.Duration
}

// LiveStats are kernel socket counters for one ring.
type LiveStats struct {
	Packets uint64
	Drops   uint64
}
