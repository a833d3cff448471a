package processor

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
)

// TCPFingerprint describes a SYN: its window and option layout.
type TCPFingerprint struct {
	Window  uint16
	Options []layers.TCPOptionKind
	String  string
}

// tcpFingerprint renders "(window)(opt)(opt)...". MSS and window scale keep
// their values since they vary by stack; other options contribute their kind.
func tcpFingerprint(tcp *layers.TCP) *TCPFingerprint {
	fp := &TCPFingerprint{Window: tcp.Window}

	var b strings.Builder
	fmt.Fprintf(&b, "(%04x)", tcp.Window)
	for _, opt := range tcp.Options {
		if opt.OptionType == layers.TCPOptionKindEndList {
			break
		}
		fp.Options = append(fp.Options, opt.OptionType)
		b.WriteByte('(')
		fmt.Fprintf(&b, "%02x", uint8(opt.OptionType))
		switch opt.OptionType {
		case layers.TCPOptionKindMSS, layers.TCPOptionKindWindowScale:
			b.WriteString(hex.EncodeToString(opt.OptionData))
		}
		b.WriteByte(')')
	}
	fp.String = b.String()
	return fp
}
