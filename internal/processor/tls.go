package processor

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	tlsContentHandshake = 22
	tlsClientHello      = 1
	tlsExtServerName    = 0
)

// ClientHello holds the parts of a TLS ClientHello used for fingerprinting.
type ClientHello struct {
	Version      uint16
	CipherSuites []uint16
	Extensions   []uint16
	ServerName   string
	String       string
}

// byteReader is a bounds-checked cursor; any short read sets failed.
type byteReader struct {
	b      []byte
	failed bool
}

func (r *byteReader) bytes(n int) []byte {
	if r.failed || n < 0 || len(r.b) < n {
		r.failed = true
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *byteReader) u8() uint8 {
	if b := r.bytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *byteReader) u16() uint16 {
	if b := r.bytes(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *byteReader) u24() int {
	if b := r.bytes(3); b != nil {
		return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	}
	return 0
}

// isGREASE reports RFC 8701 reserved values (0x?a?a with equal bytes).
func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}

// degrease maps every GREASE value to 0x0a0a so fingerprints stay stable.
func degrease(v uint16) uint16 {
	if isGREASE(v) {
		return 0x0a0a
	}
	return v
}

// parseClientHello parses a ClientHello at the start of a TCP payload. Only
// the first record is examined; a hello split across segments is parsed as
// far as its extensions block allows.
func parseClientHello(payload []byte) *ClientHello {
	r := &byteReader{b: payload}
	if r.u8() != tlsContentHandshake {
		return nil
	}
	r.u16() // record version
	r.u16() // record length
	if r.u8() != tlsClientHello {
		return nil
	}
	r.u24() // handshake length
	if r.failed {
		return nil
	}

	ch := &ClientHello{Version: r.u16()}
	r.bytes(32)          // random
	r.bytes(int(r.u8())) // session id
	suites := r.bytes(int(r.u16()))
	r.bytes(int(r.u8())) // compression methods
	if r.failed || len(suites)%2 != 0 {
		return nil
	}
	for i := 0; i < len(suites); i += 2 {
		ch.CipherSuites = append(ch.CipherSuites, binary.BigEndian.Uint16(suites[i:]))
	}

	exts := &byteReader{b: r.bytes(int(r.u16()))}
	if r.failed {
		// hello without (complete) extensions still fingerprints
		exts.b = nil
	}
	for len(exts.b) > 0 && !exts.failed {
		typ := exts.u16()
		data := exts.bytes(int(exts.u16()))
		if exts.failed {
			break
		}
		ch.Extensions = append(ch.Extensions, typ)
		if typ == tlsExtServerName {
			ch.ServerName = parseServerName(data)
		}
	}

	ch.String = ch.fingerprint()
	return ch
}

func parseServerName(data []byte) string {
	r := &byteReader{b: data}
	list := &byteReader{b: r.bytes(int(r.u16()))}
	for len(list.b) > 0 && !list.failed {
		typ := list.u8()
		name := list.bytes(int(list.u16()))
		if !list.failed && typ == 0 {
			return string(name)
		}
	}
	return ""
}

// fingerprint renders "(version)(suites)((ext)(ext)...)" in hex.
func (ch *ClientHello) fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%04x)(", ch.Version)
	for _, s := range ch.CipherSuites {
		fmt.Fprintf(&b, "%04x", degrease(s))
	}
	b.WriteString(")(")
	for _, e := range ch.Extensions {
		fmt.Fprintf(&b, "(%04x)", degrease(e))
	}
	b.WriteByte(')')
	return b.String()
}
