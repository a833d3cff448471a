package processor

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truebasic2011/mercury/internal/core"
)

func TestExtractor_TCPSyn(t *testing.T) {
	md := NewExtractor().Extract(synPacket(t))
	require.NotNil(t, md)
	require.NotNil(t, md.TCP)

	assert.Equal(t, netip.MustParseAddr("192.168.1.10"), md.Flow.SrcIP)
	assert.Equal(t, netip.MustParseAddr("93.184.216.34"), md.Flow.DstIP)
	assert.Equal(t, uint16(40000), md.Flow.SrcPort)
	assert.Equal(t, uint16(443), md.Flow.DstPort)
	assert.Equal(t, core.ProtoTCP, md.Flow.Protocol)
	assert.Equal(t, testTime, md.Timestamp)

	assert.Equal(t, uint16(0xfaf0), md.TCP.Window)
	assert.Equal(t, "(faf0)(0205b4)(01)(0307)(01)(01)(04)", md.TCP.String)
}

func TestExtractor_PlainAckIsUninteresting(t *testing.T) {
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 8080, ACK: true, Window: 512}
	assert.Nil(t, NewExtractor().Extract(tcpPacket(t, tcp, []byte("random bytes"))))
}

func TestExtractor_TLSClientHello(t *testing.T) {
	hello := clientHello("example.com", []uint16{0x1a1a, 0x1301, 0xc02f}, []uint16{0x0017, 0x2a2a})
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, ACK: true, PSH: true}

	md := NewExtractor().Extract(tcpPacket(t, tcp, hello))
	require.NotNil(t, md)
	require.NotNil(t, md.TLS)
	assert.Nil(t, md.TCP)

	assert.Equal(t, uint16(0x0303), md.TLS.Version)
	assert.Equal(t, "example.com", md.TLS.ServerName)
	assert.Equal(t, []uint16{0x1a1a, 0x1301, 0xc02f}, md.TLS.CipherSuites)
	assert.Equal(t, []uint16{0x0000, 0x0017, 0x2a2a}, md.TLS.Extensions)
	assert.Equal(t, "(0303)(0a0a1301c02f)((0000)(0017)(0a0a))", md.TLS.String)
}

func TestExtractor_HTTPRequest(t *testing.T) {
	req := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: curl/8.0\r\nAccept: */*\r\n\r\n"
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, ACK: true, PSH: true}

	md := NewExtractor().Extract(tcpPacket(t, tcp, []byte(req)))
	require.NotNil(t, md)
	require.NotNil(t, md.HTTP)
	assert.Equal(t, "GET", md.HTTP.Method)
	assert.Equal(t, "/index.html", md.HTTP.URI)
	assert.Equal(t, "HTTP/1.1", md.HTTP.Version)
	assert.Equal(t, "example.com", md.HTTP.Host)
	assert.Equal(t, "curl/8.0", md.HTTP.UserAgent)
	assert.Equal(t, []string{"host", "user-agent", "accept"}, md.HTTP.Headers)
	assert.Equal(t, "(GET)(HTTP/1.1)((host)(user-agent)(accept))", md.HTTP.String)
}

func TestExtractor_DNSQuery(t *testing.T) {
	md := NewExtractor().Extract(dnsPacket(t, "example.org"))
	require.NotNil(t, md)
	require.NotNil(t, md.DNS)
	assert.Equal(t, []string{"example.org"}, md.DNS.Names)
	assert.Equal(t, core.ProtoUDP, md.Flow.Protocol)
}

func TestExtractor_Malformed(t *testing.T) {
	e := NewExtractor()
	assert.Nil(t, e.Extract(core.RawPacket{}))
	assert.Nil(t, e.Extract(core.RawPacket{Data: []byte{1, 2, 3}}))

	// a valid SYN cut short inside the TCP header
	syn := synPacket(t)
	syn.Data = syn.Data[:14+20+8]
	assert.Nil(t, e.Extract(syn))

	assert.Nil(t, e.Extract(plainUDPPacket(t)))
}

func TestParseClientHello_Rejects(t *testing.T) {
	assert.Nil(t, parseClientHello([]byte{23, 3, 3, 0, 5}))
	assert.Nil(t, parseClientHello([]byte{22, 3, 1, 0, 4, 2, 0, 0, 0}))

	hello := clientHello("a.b", []uint16{0x1301}, nil)
	assert.Nil(t, parseClientHello(hello[:20]), "cut inside the random")
}

func TestIsGREASE(t *testing.T) {
	assert.True(t, isGREASE(0x0a0a))
	assert.True(t, isGREASE(0xfafa))
	assert.False(t, isGREASE(0x0a1a))
	assert.False(t, isGREASE(0x1301))
}

func TestParseHTTPRequest_Rejects(t *testing.T) {
	assert.Nil(t, parseHTTPRequest([]byte("HTTP/1.1 200 OK\r\n\r\n")))
	assert.Nil(t, parseHTTPRequest([]byte("GET /no-line-end")))
	assert.Nil(t, parseHTTPRequest([]byte("GET / FTP/1.0\r\n\r\n")))
}
