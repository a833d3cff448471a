package processor

import (
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/truebasic2011/mercury/internal/core"
)

// Metadata is what the extractor found in one packet.
type Metadata struct {
	Flow      core.FlowKey
	Timestamp time.Time
	TCP       *TCPFingerprint
	TLS       *ClientHello
	HTTP      *HTTPRequest
	DNS       *DNSQuery
}

// Empty reports whether no fingerprint or protocol metadata was found.
func (m *Metadata) Empty() bool {
	return m.TCP == nil && m.TLS == nil && m.HTTP == nil && m.DNS == nil
}

// DNSQuery holds the question names of a DNS query.
type DNSQuery struct {
	Names []string
}

// Extractor decodes L2-L4 with a reusable DecodingLayerParser. Not safe for
// concurrent use; each producer thread owns one.
type Extractor struct {
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP
	udp   layers.UDP
	dns   layers.DNS
}

// NewExtractor creates an extractor for Ethernet frames.
func NewExtractor() *Extractor {
	e := &Extractor{decoded: make([]gopacket.LayerType, 0, 8)}
	e.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&e.eth, &e.dot1q, &e.ip4, &e.ip6, &e.tcp, &e.udp)
	e.parser.IgnoreUnsupported = true
	return e
}

// Extract returns the packet's metadata, or nil when the packet could not be
// decoded down to a TCP or UDP flow or carried nothing of interest.
func (e *Extractor) Extract(pkt core.RawPacket) *Metadata {
	if err := e.parser.DecodeLayers(pkt.Data, &e.decoded); err != nil {
		// truncated or malformed; whatever decoded so far is still usable
		if len(e.decoded) == 0 {
			return nil
		}
	}

	md := &Metadata{Timestamp: pkt.Timestamp}
	var haveIP, haveTCP, haveUDP bool
	for _, lt := range e.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			md.Flow.SrcIP, _ = netip.AddrFromSlice(e.ip4.SrcIP.To4())
			md.Flow.DstIP, _ = netip.AddrFromSlice(e.ip4.DstIP.To4())
			md.Flow.Protocol = uint8(e.ip4.Protocol)
			haveIP = true
		case layers.LayerTypeIPv6:
			md.Flow.SrcIP, _ = netip.AddrFromSlice(e.ip6.SrcIP)
			md.Flow.DstIP, _ = netip.AddrFromSlice(e.ip6.DstIP)
			md.Flow.Protocol = uint8(e.ip6.NextHeader)
			haveIP = true
		case layers.LayerTypeTCP:
			haveTCP = true
		case layers.LayerTypeUDP:
			haveUDP = true
		}
	}
	if !haveIP {
		return nil
	}

	switch {
	case haveTCP:
		md.Flow.SrcPort = uint16(e.tcp.SrcPort)
		md.Flow.DstPort = uint16(e.tcp.DstPort)
		if e.tcp.SYN && !e.tcp.ACK {
			md.TCP = tcpFingerprint(&e.tcp)
		}
		if payload := e.tcp.Payload; len(payload) > 0 {
			md.TLS = parseClientHello(payload)
			if md.TLS == nil {
				md.HTTP = parseHTTPRequest(payload)
			}
		}
	case haveUDP:
		md.Flow.SrcPort = uint16(e.udp.SrcPort)
		md.Flow.DstPort = uint16(e.udp.DstPort)
		if e.udp.DstPort == 53 || e.udp.SrcPort == 53 {
			md.DNS = e.dnsQuery(e.udp.Payload)
		}
	default:
		return nil
	}

	if md.Empty() {
		return nil
	}
	return md
}

func (e *Extractor) dnsQuery(payload []byte) *DNSQuery {
	if err := e.dns.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return nil
	}
	if e.dns.QR || len(e.dns.Questions) == 0 {
		return nil
	}
	q := &DNSQuery{Names: make([]string, 0, len(e.dns.Questions))}
	for _, question := range e.dns.Questions {
		q.Names = append(q.Names, string(question.Name))
	}
	return q
}
