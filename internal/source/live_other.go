//go:build !linux

package source

import (
	"context"
	"fmt"

	"github.com/truebasic2011/mercury/internal/core"
)

// Live is unavailable outside linux.
type Live struct{}

// NewLive always fails outside linux.
func NewLive(cfg LiveConfig) (*Live, error) {
	return nil, fmt.Errorf("afpacket capture on %s: %w", cfg.Interface, core.ErrNotSupported)
}

// Next implements Source.
func (l *Live) Next(context.Context) (core.RawPacket, error) {
	return core.RawPacket{}, core.ErrNotSupported
}

// Stats returns no counters.
func (l *Live) Stats() (LiveStats, error) {
	return LiveStats{}, core.ErrNotSupported
}

// Close implements Source.
func (l *Live) Close() error {
	return nil
}
