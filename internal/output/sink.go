// Package output drains the per-thread queues into files, stdout or Kafka.
// Everything here is owned by the single coordinator goroutine.
package output

import (
	"bufio"
	"io"

	"github.com/truebasic2011/mercury/internal/core"
)

// Sink receives the records of one or more producer threads in queue order.
type Sink interface {
	Write(rec core.Record) error
	Flush() error
	Close() error
	Stats() SinkStats
}

// SinkStats counts what a sink did with the records handed to it.
type SinkStats struct {
	Records uint64 // records accepted
	Bytes   uint64 // payload bytes accepted
	Dropped uint64 // records refused or lost after a failure
	Opened  uint64 // files opened, including rotations
}

// Add returns the field-wise sum.
func (s SinkStats) Add(o SinkStats) SinkStats {
	return SinkStats{
		Records: s.Records + o.Records,
		Bytes:   s.Bytes + o.Bytes,
		Dropped: s.Dropped + o.Dropped,
		Opened:  s.Opened + o.Opened,
	}
}

// Stream writes records to an already open writer such as stdout. It never
// rotates and never closes the underlying writer.
type Stream struct {
	w     *bufio.Writer
	stats SinkStats
}

// NewStream wraps w.
func NewStream(w io.Writer) *Stream {
	return &Stream{w: bufio.NewWriterSize(w, 64*1024)}
}

// Write implements Sink.
func (s *Stream) Write(rec core.Record) error {
	if _, err := s.w.Write(rec.Payload); err != nil {
		s.stats.Dropped++
		return err
	}
	s.stats.Records++
	s.stats.Bytes += uint64(rec.Len())
	return nil
}

// Flush implements Sink.
func (s *Stream) Flush() error { return s.w.Flush() }

// Close implements Sink.
func (s *Stream) Close() error { return s.w.Flush() }

// Stats implements Sink.
func (s *Stream) Stats() SinkStats { return s.stats }
