package processor

import (
	"bytes"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/truebasic2011/mercury/internal/core"
)

// PacketProcessor copies packets out as pcap records. With a selection, only
// packets carrying one of the selected metadata kinds are kept.
type PacketProcessor struct {
	thread    int
	selection Selection
	extractor *Extractor

	buf bytes.Buffer
	w   *pcapgo.Writer
	seq uint64
}

// NewPacketProcessor creates the processor for one thread.
func NewPacketProcessor(thread int, sel Selection) *PacketProcessor {
	p := &PacketProcessor{thread: thread, selection: sel}
	p.w = pcapgo.NewWriter(&p.buf)
	if sel != 0 {
		p.extractor = NewExtractor()
	}
	return p
}

// Process implements Processor. The record owns a copy of the frame bytes.
func (p *PacketProcessor) Process(pkt core.RawPacket) (core.Record, bool) {
	if len(pkt.Data) == 0 {
		return core.Record{}, false
	}
	if p.selection != 0 && !p.selection.matches(p.extractor.Extract(pkt)) {
		return core.Record{}, false
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     pkt.Timestamp,
		CaptureLength: len(pkt.Data),
		Length:        max(int(pkt.OrigLen), len(pkt.Data)),
	}
	p.buf.Reset()
	if err := p.w.WritePacket(ci, pkt.Data); err != nil {
		return core.Record{}, false
	}

	rec := core.Record{
		Payload:   bytes.Clone(p.buf.Bytes()),
		Kind:      core.KindPacket,
		Thread:    p.thread,
		Seq:       p.seq,
		Timestamp: pkt.Timestamp,
	}
	p.seq++
	return rec, true
}
