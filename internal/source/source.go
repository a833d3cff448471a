// Package source implements packet ingestion: live AF_PACKET capture (one
// ring per producer thread) and capture-file replay.
package source

import (
	"context"
	"errors"

	"github.com/truebasic2011/mercury/internal/core"
)

// ErrTimeout means no packet arrived within the bounded poll interval. The
// caller should re-check its stop condition and call Next again.
var ErrTimeout = errors.New("mercury: source poll timeout")

// Source produces raw packets for one producer thread.
//
// Next returns ErrTimeout when nothing arrived in time and io.EOF when the
// input is exhausted (live sources never return io.EOF). The returned Data may
// be reused by the next call.
type Source interface {
	Next(ctx context.Context) (core.RawPacket, error)
	Close() error
}

// Factory opens the source for one producer thread.
type Factory func(thread int) (Source, error)
