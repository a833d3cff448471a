//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/gopacket/afpacket"

	"github.com/truebasic2011/mercury/internal/core"
)

// Live captures from one TPACKET_V3 ring. Every producer thread owns one Live,
// and all of them join the same fanout group, so each sees a disjoint,
// flow-consistent share of the interface's traffic.
type Live struct {
	iface  string
	handle *afpacket.TPacket
}

// NewLive creates and binds the ring for one producer thread.
func NewLive(cfg LiveConfig) (*Live, error) {
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(cfg.Interface),
		afpacket.OptFrameSize(cfg.Layout.FrameSize),
		afpacket.OptBlockSize(cfg.Layout.BlockSize),
		afpacket.OptNumBlocks(cfg.Layout.NumBlocks),
		afpacket.OptPollTimeout(timeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
		afpacket.SocketRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w: %w", cfg.Interface, core.ErrSourceOpen, err)
	}

	if err := handle.SetFanout(afpacket.FanoutHashWithDefrag, cfg.FanoutGroup); err != nil {
		handle.Close()
		return nil, fmt.Errorf("fanout %s group %d: %w: %w", cfg.Interface, cfg.FanoutGroup, core.ErrSourceOpen, err)
	}

	if len(cfg.Filter) > 0 {
		if err := handle.SetBPF(cfg.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set bpf on %s: %w: %w", cfg.Interface, core.ErrSourceOpen, err)
		}
	}

	if err := handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "interface", cfg.Interface, "error", err)
	}

	slog.Debug("afpacket ring bound",
		"interface", cfg.Interface,
		"frame_size", cfg.Layout.FrameSize,
		"block_size", cfg.Layout.BlockSize,
		"num_blocks", cfg.Layout.NumBlocks,
		"fanout_group", cfg.FanoutGroup)

	return &Live{iface: cfg.Interface, handle: handle}, nil
}

// Next implements Source. The returned Data points into the ring and is only
// valid until the next call.
func (l *Live) Next(ctx context.Context) (core.RawPacket, error) {
	if err := ctx.Err(); err != nil {
		return core.RawPacket{}, err
	}
	data, ci, err := l.handle.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) || errors.Is(err, afpacket.ErrPoll) {
			return core.RawPacket{}, ErrTimeout
		}
		return core.RawPacket{}, fmt.Errorf("read %s: %w", l.iface, err)
	}
	return core.RawPacket{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
	}, nil
}

// Stats returns the kernel's cumulative counters for this ring.
func (l *Live) Stats() (LiveStats, error) {
	_, v3, err := l.handle.SocketStats()
	if err != nil {
		return LiveStats{}, err
	}
	return LiveStats{Packets: uint64(v3.Packets()), Drops: uint64(v3.Drops())}, nil
}

// Close implements Source.
func (l *Live) Close() error {
	l.handle.Close()
	return nil
}
