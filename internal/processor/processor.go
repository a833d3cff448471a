// Package processor turns raw packets into finished output records. A
// Processor is owned by exactly one producer thread and may keep per-thread
// decoding state.
package processor

import (
	"fmt"

	"github.com/truebasic2011/mercury/internal/core"
)

// Processor converts one raw packet into at most one record. A packet that is
// malformed or uninteresting yields ok == false; that is not an error.
type Processor interface {
	Process(pkt core.RawPacket) (rec core.Record, ok bool)
}

// Factory builds the processor for one producer thread.
type Factory func(thread int) (Processor, error)

// Options selects the processing variant.
type Options struct {
	Kind   core.RecordKind // KindFingerprint or KindPacket
	Select Selection       // packet output only: keep packets carrying these kinds
}

// NewFactory returns a Factory for the configured variant.
func NewFactory(opts Options) (Factory, error) {
	switch opts.Kind {
	case core.KindFingerprint:
		return func(thread int) (Processor, error) {
			return NewFingerprintProcessor(thread), nil
		}, nil
	case core.KindPacket:
		return func(thread int) (Processor, error) {
			return NewPacketProcessor(thread, opts.Select), nil
		}, nil
	default:
		return nil, fmt.Errorf("record kind %s: %w", opts.Kind, core.ErrProcessorInit)
	}
}
