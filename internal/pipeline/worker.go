package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/truebasic2011/mercury/internal/admission"
	"github.com/truebasic2011/mercury/internal/source"
)

// liveStatser is implemented by sources that expose kernel socket counters.
type liveStatser interface {
	Stats() (source.LiveStats, error)
}

// worker is the receive loop of one producer thread.
type worker struct {
	tc        *ThreadContext
	admission *admission.Controller // nil unless adaptive
	overflow  rate.Sometimes
}

func newWorker(tc *ThreadContext, adm *admission.Controller) *worker {
	return &worker{
		tc:        tc,
		admission: adm,
		overflow:  rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// run reads until the source is exhausted or ctx is cancelled. The context is
// checked at the top of every iteration; sources never block longer than
// their poll interval.
func (w *worker) run(ctx context.Context) {
	tc := w.tc
	for {
		if ctx.Err() != nil {
			return
		}
		pkt, err := tc.Source.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, source.ErrTimeout):
				continue
			case errors.Is(err, io.EOF):
				slog.Debug("input exhausted", "thread", tc.Index, "packets", tc.PacketsRead.Load())
				return
			case ctx.Err() != nil:
				return
			default:
				slog.Error("source read failed, thread stopping", "thread", tc.Index, "error", err)
				return
			}
		}
		pkt.Thread = tc.Index
		tc.PacketsRead.Add(1)

		if w.admission != nil && !w.admission.Admit(tc.rng) {
			tc.PacketsDropped.Add(1)
			continue
		}

		rec, ok := tc.Processor.Process(pkt)
		if !ok {
			tc.NoRecord.Add(1)
			continue
		}

		if !tc.Ring.TryPush(rec) {
			tc.QueueDrops.Add(1)
			w.overflow.Do(func() {
				slog.Warn("output queue full, dropping records",
					"thread", tc.Index, "queue_drops", tc.QueueDrops.Load())
			})
			continue
		}
		tc.PacketsWritten.Add(1)
		tc.BytesWritten.Add(uint64(rec.Len()))
	}
}

// collectKernelStats copies kernel socket counters into the thread's counters.
func (w *worker) collectKernelStats() {
	s, ok := w.tc.Source.(liveStatser)
	if !ok {
		return
	}
	st, err := s.Stats()
	if err != nil {
		slog.Debug("kernel stats unavailable", "thread", w.tc.Index, "error", err)
		return
	}
	w.tc.KernelPackets.Store(st.Packets)
	w.tc.KernelDrops.Store(st.Drops)
}
