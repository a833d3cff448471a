package source

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/truebasic2011/mercury/internal/core"
)

const pcapngMagic = 0x0A0D0D0A

// Replay reads a pcap or pcapng file sequentially, looping over it a fixed
// number of times.
type Replay struct {
	path   string
	file   *os.File
	buf    *bufio.Reader
	reader gopacket.PacketDataSource

	loops     int
	pass      int // completed passes
	packets   uint64
	passStart uint64 // packets read before the current pass
}

// NewReplay opens path for loops passes. loops must be at least 1.
func NewReplay(path string, loops int) (*Replay, error) {
	if loops < 1 {
		return nil, fmt.Errorf("replay loop count must be >= 1, got %d: %w", loops, core.ErrConfigInvalid)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, core.ErrSourceOpen, err)
	}
	r := &Replay{
		path:  path,
		file:  f,
		buf:   bufio.NewReaderSize(f, 1<<16),
		loops: loops,
	}
	if err := r.openReader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// openReader sniffs the file format and builds a reader at the current offset.
func (r *Replay) openReader() error {
	magic, err := r.buf.Peek(4)
	if err != nil {
		return fmt.Errorf("read header of %s: %w: %w", r.path, core.ErrSourceOpen, err)
	}

	var rd gopacket.PacketDataSource
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		rd, err = pcapgo.NewNgReader(r.buf, pcapgo.DefaultNgReaderOptions)
	} else {
		rd, err = pcapgo.NewReader(r.buf)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w: %w", r.path, core.ErrSourceOpen, err)
	}
	r.reader = rd
	return nil
}

// rewind restarts reading from the beginning of the file.
func (r *Replay) rewind() error {
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", r.path, err)
	}
	r.buf.Reset(r.file)
	return r.openReader()
}

// Next implements Source.
func (r *Replay) Next(ctx context.Context) (core.RawPacket, error) {
	for {
		if r.pass >= r.loops {
			return core.RawPacket{}, io.EOF
		}

		data, ci, err := r.reader.ReadPacketData()
		if err == nil {
			r.packets++
			return core.RawPacket{
				Data:       data,
				Timestamp:  ci.Timestamp,
				CaptureLen: uint32(ci.CaptureLength),
				OrigLen:    uint32(ci.Length),
			}, nil
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return core.RawPacket{}, fmt.Errorf("read %s: %w", r.path, err)
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			slog.Warn("truncated record at end of capture file", "file", r.path, "pass", r.pass+1)
		}

		r.pass++
		if r.pass >= r.loops || r.packets == r.passStart {
			// a pass without packets would repeat forever
			return core.RawPacket{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return core.RawPacket{}, err
		}
		r.passStart = r.packets
		slog.Debug("replay pass finished, rewinding",
			"file", r.path, "pass", r.pass, "loops", r.loops)
		if err := r.rewind(); err != nil {
			return core.RawPacket{}, err
		}
	}
}

// Packets returns the number of packets read across all passes.
func (r *Replay) Packets() uint64 {
	return r.packets
}

// Close implements Source.
func (r *Replay) Close() error {
	return r.file.Close()
}
