package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/truebasic2011/mercury/internal/core"
)

const fileBufferSize = 256 * 1024

// HeaderFunc writes the format header at the start of every file.
type HeaderFunc func(w io.Writer) error

// FileOptions configures a rotating output file.
type FileOptions struct {
	Base      string     // path template; with rotation files are Base.<seq>
	Limit     uint64     // records per file, 0 disables rotation
	Overwrite bool       // truncate existing files instead of refusing them
	Compress  bool       // zstd-compress each file, adding ".zst"
	Header    HeaderFunc // optional
}

// File is one rotating output stream. After a failed write or rotation the
// file is broken and every further record is dropped.
type File struct {
	opts FileOptions

	f  *os.File
	zw *zstd.Encoder
	bw *bufio.Writer

	name   string
	seq    int
	count  uint64
	broken bool
	stats  SinkStats
}

// OpenFile opens the first file of the stream.
func OpenFile(opts FileOptions) (*File, error) {
	if opts.Base == "" {
		return nil, fmt.Errorf("empty output path: %w", core.ErrConfigInvalid)
	}
	f := &File{opts: opts}
	if err := f.open(); err != nil {
		f.closeCurrent()
		return nil, err
	}
	return f, nil
}

// Name returns the path of the file currently being written.
func (f *File) Name() string { return f.name }

// Broken reports whether the file has stopped accepting records.
func (f *File) Broken() bool { return f.broken }

// fileName renders the path for sequence number seq.
func (f *File) fileName(seq int) string {
	name := f.opts.Base
	if f.opts.Limit > 0 {
		name += "." + strconv.Itoa(seq)
	}
	if f.opts.Compress {
		name += ".zst"
	}
	return name
}

func (f *File) open() error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if f.opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	name := f.fileName(f.seq)
	fh, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", name, core.ErrOutputOpen, err)
	}

	var w io.Writer = fh
	f.zw = nil
	if f.opts.Compress {
		zw, err := zstd.NewWriter(fh, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			fh.Close()
			return fmt.Errorf("zstd %s: %w: %w", name, core.ErrOutputOpen, err)
		}
		f.zw = zw
		w = zw
	}
	f.f = fh
	f.name = name
	f.count = 0
	if f.bw == nil {
		f.bw = bufio.NewWriterSize(w, fileBufferSize)
	} else {
		f.bw.Reset(w)
	}
	f.stats.Opened++

	if f.opts.Header != nil {
		if err := f.opts.Header(f.bw); err != nil {
			return fmt.Errorf("header %s: %w: %w", name, core.ErrOutputOpen, err)
		}
	}
	return nil
}

// closeCurrent flushes every layer and closes the handle.
func (f *File) closeCurrent() error {
	if f.f == nil {
		return nil
	}
	err := f.bw.Flush()
	if f.zw != nil {
		err = errors.Join(err, f.zw.Close())
		f.zw = nil
	}
	err = errors.Join(err, f.f.Close())
	f.f = nil
	return err
}

// rotate closes the current file and opens the next sequence number.
func (f *File) rotate() error {
	if err := f.closeCurrent(); err != nil {
		return err
	}
	f.seq++
	return f.open()
}

// Write implements Sink.
func (f *File) Write(rec core.Record) error {
	if f.broken {
		f.stats.Dropped++
		return core.ErrOutputBroken
	}
	if f.opts.Limit > 0 && f.count >= f.opts.Limit {
		if err := f.rotate(); err != nil {
			return f.fail(err)
		}
	}
	if _, err := f.bw.Write(rec.Payload); err != nil {
		return f.fail(err)
	}
	f.count++
	f.stats.Records++
	f.stats.Bytes += uint64(rec.Len())
	return nil
}

func (f *File) fail(err error) error {
	f.broken = true
	f.stats.Dropped++
	// the encoder owns background goroutines until closed
	if f.zw != nil {
		f.zw.Close()
		f.zw = nil
	}
	if f.f != nil {
		f.f.Close()
		f.f = nil
	}
	return fmt.Errorf("%s: %w: %w", f.name, core.ErrOutputBroken, err)
}

// Flush implements Sink.
func (f *File) Flush() error {
	if f.broken || f.f == nil {
		return nil
	}
	if err := f.bw.Flush(); err != nil {
		return f.fail(err)
	}
	if f.zw != nil {
		if err := f.zw.Flush(); err != nil {
			return f.fail(err)
		}
	}
	return nil
}

// Close implements Sink.
func (f *File) Close() error {
	if f.broken {
		return nil
	}
	return f.closeCurrent()
}

// Stats implements Sink.
func (f *File) Stats() SinkStats { return f.stats }
