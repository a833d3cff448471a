package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truebasic2011/mercury/internal/core"
)

func testFrames(n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		frame := make([]byte, 60)
		frame[0] = byte(i)
		frames[i] = frame
	}
	return frames
}

func writePcap(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	base := time.Unix(1700000000, 0)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     base.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func writePcapng(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000, int64(i)),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	require.NoError(t, w.Flush())
	return path
}

func drain(t *testing.T, s Source) []core.RawPacket {
	t.Helper()
	var out []core.RawPacket
	for {
		pkt, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, pkt)
	}
}

func TestNewReplay_InvalidLoopCount(t *testing.T) {
	path := writePcap(t, testFrames(1))
	for _, loops := range []int{0, -3} {
		r, err := NewReplay(path, loops)
		assert.Nil(t, r)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	}
}

func TestNewReplay_MissingFile(t *testing.T) {
	_, err := NewReplay(filepath.Join(t.TempDir(), "missing.pcap"), 1)
	assert.True(t, errors.Is(err, core.ErrSourceOpen))
}

func TestNewReplay_NotACaptureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pcap")
	require.NoError(t, os.WriteFile(path, []byte("definitely not pcap data"), 0o644))
	_, err := NewReplay(path, 1)
	assert.True(t, errors.Is(err, core.ErrSourceOpen))
}

func TestReplay_SinglePass(t *testing.T) {
	frames := testFrames(10)
	r, err := NewReplay(writePcap(t, frames), 1)
	require.NoError(t, err)
	defer r.Close()

	pkts := drain(t, r)
	require.Len(t, pkts, 10)
	for i, pkt := range pkts {
		assert.Equal(t, byte(i), pkt.Data[0])
		assert.Equal(t, uint32(60), pkt.CaptureLen)
	}

	// exhausted sources keep reporting end of input
	_, err = r.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReplay_LoopsRepeatInOrder(t *testing.T) {
	frames := testFrames(10)
	r, err := NewReplay(writePcap(t, frames), 3)
	require.NoError(t, err)
	defer r.Close()

	pkts := drain(t, r)
	require.Len(t, pkts, 30)
	for i, pkt := range pkts {
		assert.Equal(t, byte(i%10), pkt.Data[0], "packet %d", i)
	}
	assert.Equal(t, uint64(30), r.Packets())
}

func TestReplay_EmptyFileEndsDespiteLoops(t *testing.T) {
	r, err := NewReplay(writePcap(t, nil), 1_000_000_000)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
	assert.Equal(t, uint64(0), r.Packets())
}

func TestReplay_CancelStopsRewind(t *testing.T) {
	r, err := NewReplay(writePcap(t, testFrames(3)), 1_000_000_000)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		_, err := r.Next(ctx)
		require.NoError(t, err)
	}
	cancel()

	_, err = r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplay_Pcapng(t *testing.T) {
	frames := testFrames(5)
	r, err := NewReplay(writePcapng(t, frames), 2)
	require.NoError(t, err)
	defer r.Close()

	pkts := drain(t, r)
	require.Len(t, pkts, 10)
	assert.Equal(t, byte(4), pkts[9].Data[0])
}

func TestReplay_TruncatedTail(t *testing.T) {
	path := writePcap(t, testFrames(3))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-10))

	r, err := NewReplay(path, 2)
	require.NoError(t, err)
	defer r.Close()

	pkts := drain(t, r)
	assert.Len(t, pkts, 4, "two complete packets per pass")
}
