// Package core defines core data structures with zero external dependencies.
package core

import (
	"time"
)

// RawPacket is a frame handed out by an ingestion source. Data may reference
// the capture ring and is only valid until the source's next read.
type RawPacket struct {
	Data       []byte    // Raw frame data, possibly zero-copy
	Timestamp  time.Time // Capture timestamp (kernel timestamp preferred)
	CaptureLen uint32    // Actual captured length
	OrigLen    uint32    // Original frame length
	Thread     int       // Index of the producer thread that read it
}

// RecordKind tells the output stage which file format a record belongs to.
type RecordKind uint8

const (
	// KindFingerprint is one JSON line of packet metadata.
	KindFingerprint RecordKind = iota + 1
	// KindPacket is one pcap packet record (record header + frame bytes).
	KindPacket
)

// String implements fmt.Stringer.
func (k RecordKind) String() string {
	switch k {
	case KindFingerprint:
		return "fingerprint"
	case KindPacket:
		return "packet"
	default:
		return "unknown"
	}
}

// Record is a finished, serialized output record. Ownership moves from the
// producing processor into a queue slot and finally to the output coordinator.
type Record struct {
	Payload   []byte
	Kind      RecordKind
	Thread    int
	Seq       uint64
	Timestamp time.Time
}

// Len returns the payload size in bytes.
func (r Record) Len() int {
	return len(r.Payload)
}
