package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/truebasic2011/mercury/internal/core"
)

// PcapSnapLen is the snap length written into pcap file headers.
const PcapSnapLen = 65535

// Options describes where records go.
type Options struct {
	Kind      core.RecordKind
	Path      string // empty means stdout (or Kafka when configured)
	Limit     uint64
	Overwrite bool
	Compress  bool
	Kafka     *KafkaConfig
	Stdout    io.Writer // defaults to os.Stdout
}

// Layout maps producer threads to sinks. Single-thread runs share one sink;
// multi-thread runs get a file set: one file per thread under Path.
type Layout struct {
	sinks []Sink
}

// Open creates the sinks for threads producer threads.
func Open(opts Options, threads int) (*Layout, error) {
	if threads < 1 {
		return nil, fmt.Errorf("thread count %d: %w", threads, core.ErrConfigInvalid)
	}

	if opts.Kafka != nil {
		k, err := NewKafkaSink(*opts.Kafka)
		if err != nil {
			return nil, err
		}
		return shared(k, threads), nil
	}

	if opts.Path == "" {
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		return shared(NewStream(w), threads), nil
	}

	fo := FileOptions{
		Base:      opts.Path,
		Limit:     opts.Limit,
		Overwrite: opts.Overwrite,
		Compress:  opts.Compress,
		Header:    headerFor(opts.Kind),
	}
	if threads == 1 {
		f, err := OpenFile(fo)
		if err != nil {
			return nil, err
		}
		return shared(f, 1), nil
	}

	if err := os.Mkdir(opts.Path, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("file set %s: %w: %w", opts.Path, core.ErrOutputOpen, err)
	}
	l := &Layout{sinks: make([]Sink, 0, threads)}
	for i := range threads {
		fo.Base = filepath.Join(opts.Path, fmt.Sprintf("thread-%d%s", i, extFor(opts.Kind)))
		f, err := OpenFile(fo)
		if err != nil {
			l.Close()
			return nil, err
		}
		l.sinks = append(l.sinks, f)
	}
	return l, nil
}

func shared(s Sink, threads int) *Layout {
	l := &Layout{sinks: make([]Sink, threads)}
	for i := range l.sinks {
		l.sinks[i] = s
	}
	return l
}

// Sink returns the sink for thread.
func (l *Layout) Sink(thread int) Sink { return l.sinks[thread] }

// Threads returns the number of threads the layout serves.
func (l *Layout) Threads() int { return len(l.sinks) }

// Unique returns every distinct sink once, in thread order.
func (l *Layout) Unique() []Sink {
	seen := make(map[Sink]struct{}, len(l.sinks))
	out := make([]Sink, 0, len(l.sinks))
	for _, s := range l.sinks {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Paths returns the filesystem paths owned by the layout, for chown after a
// privilege drop.
func (l *Layout) Paths(opts Options) []string {
	if opts.Path == "" || opts.Kafka != nil {
		return nil
	}
	paths := []string{opts.Path}
	if len(l.sinks) > 1 {
		for _, s := range l.sinks {
			if f, ok := s.(*File); ok {
				paths = append(paths, f.Name())
			}
		}
	} else if f, ok := l.sinks[0].(*File); ok {
		paths = []string{f.Name()}
	}
	return paths
}

// Close closes every distinct sink.
func (l *Layout) Close() error {
	var errs []error
	for _, s := range l.Unique() {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Stats sums the stats of every distinct sink.
func (l *Layout) Stats() SinkStats {
	var total SinkStats
	for _, s := range l.Unique() {
		total = total.Add(s.Stats())
	}
	return total
}

func headerFor(kind core.RecordKind) HeaderFunc {
	if kind != core.KindPacket {
		return nil
	}
	return func(w io.Writer) error {
		return pcapgo.NewWriter(w).WriteFileHeader(PcapSnapLen, layers.LinkTypeEthernet)
	}
}

func extFor(kind core.RecordKind) string {
	if kind == core.KindPacket {
		return ".pcap"
	}
	return ".json"
}
