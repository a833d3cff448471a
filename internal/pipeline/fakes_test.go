package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/truebasic2011/mercury/internal/core"
	"github.com/truebasic2011/mercury/internal/processor"
	"github.com/truebasic2011/mercury/internal/source"
)

// fakeSource yields n packets whose data is "<thread>:<seq>\n". With live set
// it never ends and interleaves timeouts until its context is cancelled.
type fakeSource struct {
	thread int
	n      int
	live   bool
	next   int
	closed atomic.Bool
}

func (s *fakeSource) Next(ctx context.Context) (core.RawPacket, error) {
	if s.live {
		if ctx.Err() != nil {
			return core.RawPacket{}, ctx.Err()
		}
		if s.next%7 == 6 {
			s.next++
			time.Sleep(50 * time.Microsecond)
			return core.RawPacket{}, source.ErrTimeout
		}
	} else if s.next >= s.n {
		return core.RawPacket{}, io.EOF
	}
	pkt := core.RawPacket{
		Data:      []byte(fmt.Sprintf("%d:%d\n", s.thread, s.next)),
		Timestamp: time.Unix(int64(s.next), 0),
	}
	s.next++
	return pkt, nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeSources records every source it opens so tests can check they were closed.
type fakeSources struct {
	mu      sync.Mutex
	opened  []*fakeSource
	perThr  int
	live    bool
	failFor int // thread index whose open fails, -1 for none
}

func newFakeSources(perThread int) *fakeSources {
	return &fakeSources{perThr: perThread, failFor: -1}
}

func (f *fakeSources) factory() source.Factory {
	return func(thread int) (source.Source, error) {
		if thread == f.failFor {
			return nil, fmt.Errorf("eth9: %w", core.ErrSourceOpen)
		}
		s := &fakeSource{thread: thread, n: f.perThr, live: f.live}
		f.mu.Lock()
		f.opened = append(f.opened, s)
		f.mu.Unlock()
		return s, nil
	}
}

func (f *fakeSources) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.opened {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

func (f *fakeSources) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

// echoProcessor turns the packet data into the record payload. Every tenth
// packet is treated as uninteresting when skipTenth is set.
type echoProcessor struct {
	thread    int
	seq       uint64
	skipTenth bool
	seen      int
}

func (p *echoProcessor) Process(pkt core.RawPacket) (core.Record, bool) {
	p.seen++
	if p.skipTenth && p.seen%10 == 0 {
		return core.Record{}, false
	}
	rec := core.Record{
		Payload:   append([]byte(nil), pkt.Data...),
		Kind:      core.KindFingerprint,
		Thread:    p.thread,
		Seq:       p.seq,
		Timestamp: pkt.Timestamp,
	}
	p.seq++
	return rec, true
}

func echoProcessors(skipTenth bool) processor.Factory {
	return func(thread int) (processor.Processor, error) {
		return &echoProcessor{thread: thread, skipTenth: skipTenth}, nil
	}
}

var errHook = errors.New("hook failed")
