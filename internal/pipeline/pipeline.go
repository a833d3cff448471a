// Package pipeline is the lifecycle controller: it builds the per-thread
// contexts, runs N producers and one output coordinator, and tears them down
// in an order that loses no enqueued record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/truebasic2011/mercury/internal/admission"
	"github.com/truebasic2011/mercury/internal/core"
	"github.com/truebasic2011/mercury/internal/output"
	"github.com/truebasic2011/mercury/internal/processor"
	"github.com/truebasic2011/mercury/internal/queue"
	"github.com/truebasic2011/mercury/internal/source"
)

// DefaultQueueSize is the per-thread queue capacity in records.
const DefaultQueueSize = 1 << 16

// Config contains pipeline configuration.
type Config struct {
	Threads    int
	QueueSize  int // records per thread queue
	Sources    source.Factory
	Processors processor.Factory
	Output     output.Options
	IdleWait   time.Duration // coordinator idle wait, 0 for the default

	Adaptive          bool
	AdmissionSeed     *int // starting percent, nil for admission.DefaultSeed
	AdmissionInterval time.Duration
	AdmissionPolicy   admission.Policy // nil means AIMD

	// AfterSetup runs once every source is open and before the start signal.
	// It receives the output paths; the privilege drop hooks in here.
	AfterSetup func(paths []string) error
}

// Pipeline runs one capture or replay session.
type Pipeline struct {
	cfg Config

	mu        sync.RWMutex // guards the fields below, set once during setup
	threads   []*ThreadContext
	admission *admission.Controller
	coord     *output.Coordinator
}

// New creates a pipeline; nothing is opened until Run.
func New(cfg Config) *Pipeline {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.AdmissionSeed == nil {
		seed := admission.DefaultSeed
		cfg.AdmissionSeed = &seed
	}
	return &Pipeline{cfg: cfg}
}

// Run executes the session. It returns when the context is cancelled or every
// source is exhausted, after all records have been drained and the output
// closed. A nil error means a clean shutdown.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	begin := time.Now()
	cfg := p.cfg
	if cfg.Threads < 1 {
		return Summary{}, fmt.Errorf("thread count %d: %w", cfg.Threads, core.ErrConfigInvalid)
	}
	if cfg.Sources == nil || cfg.Processors == nil {
		return Summary{}, fmt.Errorf("source and processor factories required: %w", core.ErrConfigInvalid)
	}

	threads := make([]*ThreadContext, cfg.Threads)
	rings := make([]*queue.Ring, cfg.Threads)
	for i := range threads {
		proc, err := cfg.Processors(i)
		if err != nil {
			return Summary{}, fmt.Errorf("thread %d: %w: %w", i, core.ErrProcessorInit, err)
		}
		ring, err := queue.New(cfg.QueueSize)
		if err != nil {
			return Summary{}, err
		}
		rings[i] = ring
		threads[i] = newThreadContext(i, proc, ring)
	}

	layout, err := output.Open(cfg.Output, cfg.Threads)
	if err != nil {
		return Summary{}, err
	}

	var adm *admission.Controller
	if cfg.Adaptive {
		adm = admission.NewController(*cfg.AdmissionSeed, cfg.AdmissionPolicy)
	}

	start := make(chan struct{})
	coord := output.NewCoordinator(rings, layout, start, cfg.IdleWait)

	p.mu.Lock()
	p.threads = threads
	p.admission = adm
	p.coord = coord
	p.mu.Unlock()

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coord.Run()
	}()

	prodCtx, cancelProducers := context.WithCancel(ctx)
	defer cancelProducers()

	var wg sync.WaitGroup
	ready := make(chan error, cfg.Threads)
	for _, tc := range threads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.produce(prodCtx, tc, adm, start, ready)
		}()
	}

	// abort tears down a partially started session; nothing was admitted yet
	abort := func(err error) (Summary, error) {
		cancelProducers()
		wg.Wait()
		coord.Stop()
		<-coordDone
		return p.summary(begin), err
	}

	var setupErrs []error
	for range cfg.Threads {
		if err := <-ready; err != nil {
			setupErrs = append(setupErrs, err)
		}
	}
	if len(setupErrs) > 0 {
		return abort(errors.Join(setupErrs...))
	}
	if cfg.AfterSetup != nil {
		if err := cfg.AfterSetup(layout.Paths(cfg.Output)); err != nil {
			return abort(err)
		}
	}

	close(start)
	begin = time.Now()
	slog.Info("pipeline started", "threads", cfg.Threads, "adaptive", cfg.Adaptive)

	admCtx, cancelAdmission := context.WithCancel(context.Background())
	admDone := make(chan struct{})
	if adm != nil {
		go func() {
			defer close(admDone)
			adm.Run(admCtx, cfg.AdmissionInterval, p.admissionSignal)
		}()
	} else {
		close(admDone)
	}

	producersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(producersDone)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown requested, stopping producers")
	case <-producersDone:
		slog.Info("all inputs exhausted")
	}

	cancelProducers()
	<-producersDone
	cancelAdmission()
	<-admDone

	// every producer has returned, so nothing can be enqueued past this point
	coord.Stop()
	<-coordDone

	sum := p.summary(begin)
	slog.Info("pipeline stopped",
		"packets_written", sum.Totals.PacketsWritten,
		"bytes_written", sum.Totals.BytesWritten,
		"elapsed", sum.Elapsed)
	return sum, nil
}

// produce opens the thread's source, reports readiness, then waits for the
// start signal before entering the receive loop.
func (p *Pipeline) produce(ctx context.Context, tc *ThreadContext, adm *admission.Controller,
	start <-chan struct{}, ready chan<- error) {
	src, err := p.cfg.Sources(tc.Index)
	if err != nil {
		ready <- fmt.Errorf("thread %d: %w", tc.Index, err)
		return
	}
	tc.Source = src
	w := newWorker(tc, adm)
	defer func() {
		w.collectKernelStats()
		if err := src.Close(); err != nil {
			slog.Warn("closing source failed", "thread", tc.Index, "error", err)
		}
	}()
	ready <- nil

	select {
	case <-start:
	case <-ctx.Done():
		return
	}
	slog.Debug("producer running", "thread", tc.Index)
	w.run(ctx)
}

// admissionSignal sums the overload evidence of every thread. It only loads
// the producers' own counters and never touches a queue.
func (p *Pipeline) admissionSignal() admission.Signal {
	var s admission.Signal
	for _, tc := range p.threads {
		drops := tc.QueueDrops.Load()
		s.Offered += tc.PacketsWritten.Load() + drops
		s.Overflowed += drops
	}
	return s
}
