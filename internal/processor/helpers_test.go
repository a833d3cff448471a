package processor

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/truebasic2011/mercury/internal/core"
)

var testTime = time.Unix(1700000000, 250000000)

func ethIPv4(proto layers.IPProtocol) (*layers.Ethernet, *layers.IPv4) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{192, 168, 1, 10},
		DstIP:    net.IP{93, 184, 216, 34},
	}
	return eth, ip
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) core.RawPacket {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	data := buf.Bytes()
	return core.RawPacket{
		Data:       data,
		Timestamp:  testTime,
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
}

func tcpPacket(t *testing.T, tcp *layers.TCP, payload []byte) core.RawPacket {
	t.Helper()
	eth, ip := ethIPv4(layers.IPProtocolTCP)
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, tcp, gopacket.Payload(payload))
}

func synPacket(t *testing.T) core.RawPacket {
	tcp := &layers.TCP{
		SrcPort: 40000,
		DstPort: 443,
		SYN:     true,
		Window:  0xfaf0,
		Options: []layers.TCPOption{
			{OptionType: layers.TCPOptionKindMSS, OptionLength: 4, OptionData: []byte{0x05, 0xb4}},
			{OptionType: layers.TCPOptionKindNop},
			{OptionType: layers.TCPOptionKindWindowScale, OptionLength: 3, OptionData: []byte{0x07}},
			{OptionType: layers.TCPOptionKindNop},
			{OptionType: layers.TCPOptionKindNop},
			{OptionType: layers.TCPOptionKindSACKPermitted, OptionLength: 2},
		},
	}
	return tcpPacket(t, tcp, nil)
}

func dnsPacket(t *testing.T, name string) core.RawPacket {
	t.Helper()
	eth, ip := ethIPv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 53000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	dns := &layers.DNS{
		ID:      0x1234,
		RD:      true,
		QDCount: 1,
		Questions: []layers.DNSQuestion{
			{Name: []byte(name), Type: layers.DNSTypeA, Class: layers.DNSClassIN},
		},
	}
	return serialize(t, eth, ip, udp, dns)
}

func plainUDPPacket(t *testing.T) core.RawPacket {
	t.Helper()
	eth, ip := ethIPv4(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, eth, ip, udp, gopacket.Payload([]byte("hello")))
}

// clientHello builds a minimal TLS record carrying a ClientHello with SNI.
func clientHello(sni string, suites []uint16, extra []uint16) []byte {
	var exts []byte
	// server_name
	name := []byte(sni)
	sn := make([]byte, 0, 5+len(name))
	sn = binary.BigEndian.AppendUint16(sn, uint16(3+len(name)))
	sn = append(sn, 0)
	sn = binary.BigEndian.AppendUint16(sn, uint16(len(name)))
	sn = append(sn, name...)
	exts = binary.BigEndian.AppendUint16(exts, 0)
	exts = binary.BigEndian.AppendUint16(exts, uint16(len(sn)))
	exts = append(exts, sn...)
	for _, e := range extra {
		exts = binary.BigEndian.AppendUint16(exts, e)
		exts = binary.BigEndian.AppendUint16(exts, 0)
	}

	var body []byte
	body = binary.BigEndian.AppendUint16(body, 0x0303)
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0)                   // session id
	body = binary.BigEndian.AppendUint16(body, uint16(2*len(suites)))
	for _, s := range suites {
		body = binary.BigEndian.AppendUint16(body, s)
	}
	body = append(body, 1, 0) // compression: null
	body = binary.BigEndian.AppendUint16(body, uint16(len(exts)))
	body = append(body, exts...)

	hs := []byte{1, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	hs = append(hs, body...)

	rec := []byte{22, 0x03, 0x01}
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(hs)))
	return append(rec, hs...)
}
