package processor

import (
	"github.com/bytedance/sonic"

	"github.com/truebasic2011/mercury/internal/core"
)

// recordJSON replaces invalid UTF-8 from packet bytes with U+FFFD.
var recordJSON = sonic.Config{ValidateString: true}.Froze()

// fingerprintRecord is the JSON line written for each packet with metadata.
type fingerprintRecord struct {
	SrcIP        string            `json:"src_ip"`
	DstIP        string            `json:"dst_ip"`
	Protocol     uint8             `json:"protocol"`
	SrcPort      uint16            `json:"src_port"`
	DstPort      uint16            `json:"dst_port"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	TLS          *tlsRecord        `json:"tls,omitempty"`
	HTTP         *httpRecord       `json:"http,omitempty"`
	DNS          *dnsRecord        `json:"dns,omitempty"`
	EventStart   float64           `json:"event_start"`
}

type tlsRecord struct {
	ServerName string `json:"server_name,omitempty"`
}

type httpRecord struct {
	Method    string `json:"method"`
	URI       string `json:"uri"`
	Host      string `json:"host,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type dnsRecord struct {
	Query []string `json:"query"`
}

// FingerprintProcessor emits one JSON line per packet that carries metadata.
type FingerprintProcessor struct {
	thread    int
	extractor *Extractor
	seq       uint64
}

// NewFingerprintProcessor creates the processor for one thread.
func NewFingerprintProcessor(thread int) *FingerprintProcessor {
	return &FingerprintProcessor{thread: thread, extractor: NewExtractor()}
}

// Process implements Processor.
func (p *FingerprintProcessor) Process(pkt core.RawPacket) (core.Record, bool) {
	md := p.extractor.Extract(pkt)
	if md == nil {
		return core.Record{}, false
	}

	payload, err := recordJSON.Marshal(newFingerprintRecord(md))
	if err != nil {
		return core.Record{}, false
	}
	payload = append(payload, '\n')

	rec := core.Record{
		Payload:   payload,
		Kind:      core.KindFingerprint,
		Thread:    p.thread,
		Seq:       p.seq,
		Timestamp: pkt.Timestamp,
	}
	p.seq++
	return rec, true
}

func newFingerprintRecord(md *Metadata) *fingerprintRecord {
	r := &fingerprintRecord{
		SrcIP:      md.Flow.SrcIP.String(),
		DstIP:      md.Flow.DstIP.String(),
		Protocol:   md.Flow.Protocol,
		SrcPort:    md.Flow.SrcPort,
		DstPort:    md.Flow.DstPort,
		EventStart: float64(md.Timestamp.UnixMicro()) / 1e6,
	}

	fps := make(map[string]string, 3)
	if md.TCP != nil {
		fps["tcp"] = md.TCP.String
	}
	if md.TLS != nil {
		fps["tls"] = md.TLS.String
		r.TLS = &tlsRecord{ServerName: md.TLS.ServerName}
	}
	if md.HTTP != nil {
		fps["http"] = md.HTTP.String
		r.HTTP = &httpRecord{
			Method:    md.HTTP.Method,
			URI:       md.HTTP.URI,
			Host:      md.HTTP.Host,
			UserAgent: md.HTTP.UserAgent,
		}
	}
	if md.DNS != nil {
		r.DNS = &dnsRecord{Query: md.DNS.Names}
	}
	if len(fps) > 0 {
		r.Fingerprints = fps
	}
	return r
}
