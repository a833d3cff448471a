package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/truebasic2011/mercury/internal/output"
)

// Summary is the final report of a session.
type Summary struct {
	Threads          int
	Totals           CounterSnapshot
	PerThread        []CounterSnapshot
	Output           output.Stats
	AdmissionPercent int // -1 when adaptive mode is off
	Elapsed          time.Duration
}

// BytesPerSecond is the enqueue byte rate over the whole session.
func (s Summary) BytesPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Totals.BytesWritten) / s.Elapsed.Seconds()
}

// WriteReport prints the verbose end-of-run statistics.
func (s Summary) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "For all files, packets written: %d, bytes written: %d, nano sec: %d, bytes per second: %.4e\n",
		s.Totals.PacketsWritten, s.Totals.BytesWritten, s.Elapsed.Nanoseconds(), s.BytesPerSecond())
	if s.Totals.PacketsDropped > 0 || s.AdmissionPercent >= 0 {
		fmt.Fprintf(w, "packets dropped (admission): %d\n", s.Totals.PacketsDropped)
	}
	if s.Totals.QueueDrops > 0 {
		fmt.Fprintf(w, "records dropped (queue full): %d\n", s.Totals.QueueDrops)
	}
	if s.Output.Dropped > 0 {
		fmt.Fprintf(w, "records dropped (output): %d\n", s.Output.Dropped)
	}
	if s.Totals.KernelDrops > 0 {
		fmt.Fprintf(w, "packets dropped (kernel): %d\n", s.Totals.KernelDrops)
	}
}

// Snapshot is a live view for metrics export.
type Snapshot struct {
	PerThread        []CounterSnapshot
	Output           output.Stats
	CoordinatorState output.State
	AdmissionPercent int // -1 when adaptive mode is off
}

// Snapshot returns the current counters. Before Run has set up the threads
// it returns an empty snapshot.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{AdmissionPercent: -1}
	for _, tc := range p.threads {
		s.PerThread = append(s.PerThread, tc.Snapshot())
	}
	if p.coord != nil {
		s.Output = p.coord.Stats()
		s.CoordinatorState = p.coord.State()
	}
	if p.admission != nil {
		s.AdmissionPercent = p.admission.Percent()
	}
	return s
}

func (p *Pipeline) summary(begin time.Time) Summary {
	snap := p.Snapshot()
	sum := Summary{
		Threads:          len(snap.PerThread),
		PerThread:        snap.PerThread,
		Output:           snap.Output,
		AdmissionPercent: snap.AdmissionPercent,
		Elapsed:          time.Since(begin),
	}
	for _, t := range snap.PerThread {
		sum.Totals = sum.Totals.Add(t)
	}
	return sum
}
