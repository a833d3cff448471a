package core

import (
	"fmt"
	"net/netip"
)

// IP protocol numbers used by the extractors.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FlowKey identifies a network flow by its 5-tuple.
type FlowKey struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// IsValid reports whether both addresses were decoded.
func (k FlowKey) IsValid() bool {
	return k.SrcIP.IsValid() && k.DstIP.IsValid()
}

// String implements fmt.Stringer.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s -> %s proto=%d",
		netip.AddrPortFrom(k.SrcIP, k.SrcPort),
		netip.AddrPortFrom(k.DstIP, k.DstPort),
		k.Protocol)
}
