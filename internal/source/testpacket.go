package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/truebasic2011/mercury/internal/core"
)

// TestServerName is the SNI carried by the built-in test packet.
const TestServerName = "mercury.test"

// TestPacket yields one built-in Ethernet frame carrying a TLS ClientHello,
// loops times. It exercises the whole pipeline without a capture file or
// interface.
type TestPacket struct {
	frame []byte
	loops int
	sent  int
}

// NewTestPacket builds the frame. loops must be at least 1.
func NewTestPacket(loops int) (*TestPacket, error) {
	if loops < 1 {
		return nil, fmt.Errorf("test packet loop count must be >= 1, got %d: %w", loops, core.ErrConfigInvalid)
	}
	frame, err := testFrame()
	if err != nil {
		return nil, fmt.Errorf("build test packet: %w: %w", core.ErrSourceOpen, err)
	}
	return &TestPacket{frame: frame, loops: loops}, nil
}

// Next implements Source.
func (s *TestPacket) Next(ctx context.Context) (core.RawPacket, error) {
	if err := ctx.Err(); err != nil {
		return core.RawPacket{}, err
	}
	if s.sent >= s.loops {
		return core.RawPacket{}, io.EOF
	}
	s.sent++
	return core.RawPacket{
		Data:       s.frame,
		Timestamp:  time.Now(),
		CaptureLen: uint32(len(s.frame)),
		OrigLen:    uint32(len(s.frame)),
	}, nil
}

// Close implements Source.
func (s *TestPacket) Close() error { return nil }

func testFrame() ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{192, 0, 2, 1},
		DstIP:    net.IP{198, 51, 100, 1},
	}
	tcp := &layers.TCP{
		SrcPort: 51515,
		DstPort: 443,
		Seq:     1,
		Ack:     1,
		ACK:     true,
		PSH:     true,
		Window:  502,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(testClientHello())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// testClientHello is a TLS 1.2 record with four suites, server_name and an
// empty supported_groups extension.
func testClientHello() []byte {
	name := []byte(TestServerName)
	var sn []byte
	sn = binary.BigEndian.AppendUint16(sn, uint16(3+len(name)))
	sn = append(sn, 0) // host_name
	sn = binary.BigEndian.AppendUint16(sn, uint16(len(name)))
	sn = append(sn, name...)

	var exts []byte
	exts = binary.BigEndian.AppendUint16(exts, 0x0000)
	exts = binary.BigEndian.AppendUint16(exts, uint16(len(sn)))
	exts = append(exts, sn...)
	exts = binary.BigEndian.AppendUint16(exts, 0x000a)
	exts = binary.BigEndian.AppendUint16(exts, 0)

	var body []byte
	body = binary.BigEndian.AppendUint16(body, 0x0303)
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0)                   // session id
	body = binary.BigEndian.AppendUint16(body, 8)
	for _, suite := range []uint16{0x1301, 0x1302, 0xc02b, 0xc02f} {
		body = binary.BigEndian.AppendUint16(body, suite)
	}
	body = append(body, 1, 0) // null compression
	body = binary.BigEndian.AppendUint16(body, uint16(len(exts)))
	body = append(body, exts...)

	hs := []byte{1, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	hs = append(hs, body...)

	rec := []byte{22, 0x03, 0x01}
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(hs)))
	return append(rec, hs...)
}
