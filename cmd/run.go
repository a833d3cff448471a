package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/net/bpf"

	"github.com/truebasic2011/mercury/internal/config"
	"github.com/truebasic2011/mercury/internal/core"
	"github.com/truebasic2011/mercury/internal/log"
	"github.com/truebasic2011/mercury/internal/metrics"
	"github.com/truebasic2011/mercury/internal/output"
	"github.com/truebasic2011/mercury/internal/pipeline"
	"github.com/truebasic2011/mercury/internal/privilege"
	"github.com/truebasic2011/mercury/internal/processor"
	"github.com/truebasic2011/mercury/internal/source"
)

// pcapSnapLen is the capture length requested from the kernel ring.
const pcapSnapLen = 65535

// run executes one capture or replay session with a validated config.
func run(parent context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w: %w", core.ErrConfigInvalid, err)
	}
	slog.SetDefault(slog.Default().With("run_id", uuid.NewString()))

	if cfg.Directory != "" {
		if err := os.Chdir(cfg.Directory); err != nil {
			return fmt.Errorf("change directory to %s: %w: %w", cfg.Directory, core.ErrConfigInvalid, err)
		}
	}

	sources, err := sourceFactory(cfg)
	if err != nil {
		return err
	}
	procs, err := processor.NewFactory(processor.Options{Kind: cfg.Kind(), Select: cfg.Selection})
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		Threads:    cfg.ThreadCount,
		QueueSize:  cfg.QueueSize,
		Sources:    sources,
		Processors: procs,
		Output:     outputOptions(cfg, stdout),
		Adaptive:   cfg.Adaptive,
		AfterSetup: func(paths []string) error {
			return privilege.Drop(cfg.User, paths)
		},
	}
	if cfg.Verbose {
		switch {
		case cfg.Input.Read != "":
			slog.Info("replaying capture file", "file", cfg.Input.Read, "loop", cfg.Input.Loop)
		case cfg.Input.Test:
			slog.Info("using built-in test packet", "loop", cfg.Input.Loop)
		default:
			slog.Info("initializing interface", "interface", cfg.Input.Capture, "threads", cfg.ThreadCount)
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pcfg)

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, metrics.NewCollector(p))
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	summary, err := p.Run(ctx)
	if cfg.Verbose {
		summary.WriteReport(stderr)
	}
	if err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) && parent.Err() == nil {
		slog.Info("interrupted, output drained")
	}
	return nil
}

// sourceFactory builds the per-thread source constructor for the input.
func sourceFactory(cfg *config.Config) (source.Factory, error) {
	if cfg.Input.Test {
		loops := cfg.Input.Loop
		return func(int) (source.Source, error) {
			s, err := source.NewTestPacket(loops)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	}
	if cfg.Input.Read != "" {
		path, loops := cfg.Input.Read, cfg.Input.Loop
		return func(int) (source.Source, error) {
			r, err := source.NewReplay(path, loops)
			if err != nil {
				return nil, err
			}
			return r, nil
		}, nil
	}

	filter, err := loadBPF(cfg.Input.BPF)
	if err != nil {
		return nil, err
	}
	physMem, err := source.PhysicalMemory()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSourceOpen, err)
	}
	limits := source.NewRingLimits(cfg.Input.BufferFraction, cfg.ThreadCount, physMem)
	layout, err := limits.Layout(pcapSnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	if cfg.Verbose {
		slog.Info("capture ring layout",
			"frame_size", layout.FrameSize,
			"block_size", layout.BlockSize,
			"blocks", layout.NumBlocks,
			"bytes_per_thread", limits.PerThreadBytes)
	}

	live := source.LiveConfig{
		Interface:   cfg.Input.Capture,
		Layout:      layout,
		FanoutGroup: uint16(os.Getpid()),
		Filter:      filter,
		PollTimeout: source.DefaultPollTimeout,
	}
	return func(int) (source.Source, error) {
		l, err := source.NewLive(live)
		if err != nil {
			return nil, err
		}
		return l, nil
	}, nil
}

// loadBPF reads a filter expression or tcpdump -ddd program, inline or as @file.
func loadBPF(arg string) ([]bpf.RawInstruction, error) {
	if arg == "" {
		return nil, nil
	}
	text := arg
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read bpf file %s: %w: %w", name, core.ErrConfigInvalid, err)
		}
		text = string(b)
	}
	return source.LoadFilter(text, pcapSnapLen)
}

func outputOptions(cfg *config.Config, stdout io.Writer) output.Options {
	opts := output.Options{
		Kind:      cfg.Kind(),
		Path:      cfg.OutputPath(),
		Limit:     cfg.Output.Limit,
		Overwrite: cfg.Output.Overwrite,
		Compress:  cfg.Output.Compress,
		Stdout:    stdout,
	}
	if cfg.KafkaEnabled() {
		kc := cfg.Output.Kafka
		opts.Kafka = &kc
	}
	return opts
}
