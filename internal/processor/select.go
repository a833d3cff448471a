package processor

import (
	"fmt"
	"strings"

	"github.com/truebasic2011/mercury/internal/core"
)

// Selection is the set of metadata kinds that make a packet worth keeping
// in packet output. The zero value keeps every packet.
type Selection uint8

const (
	SelectTCP Selection = 1 << iota
	SelectTLS
	SelectHTTP
	SelectDNS

	SelectAll = SelectTCP | SelectTLS | SelectHTTP | SelectDNS
)

var selectionNames = map[string]Selection{
	"tcp":  SelectTCP,
	"tls":  SelectTLS,
	"http": SelectHTTP,
	"dns":  SelectDNS,
	"all":  SelectAll,
}

// ParseSelection reads a select value: empty (or false) for no selection,
// "all" (or true) for any metadata, or a comma list such as "tls,http".
func ParseSelection(s string) (Selection, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "false", "0":
		return 0, nil
	case "true", "1":
		return SelectAll, nil
	}

	var sel Selection
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		bit, ok := selectionNames[name]
		if !ok {
			return 0, fmt.Errorf("select %q: unknown protocol %q (want tcp, tls, http, dns or all): %w",
				s, name, core.ErrConfigInvalid)
		}
		sel |= bit
	}
	return sel, nil
}

// String implements fmt.Stringer.
func (s Selection) String() string {
	if s == 0 {
		return "none"
	}
	if s == SelectAll {
		return "all"
	}
	var names []string
	for _, n := range []string{"tcp", "tls", "http", "dns"} {
		if s&selectionNames[n] != 0 {
			names = append(names, n)
		}
	}
	return strings.Join(names, ",")
}

// matches reports whether md carries any of the selected kinds.
func (s Selection) matches(md *Metadata) bool {
	if md == nil {
		return false
	}
	return s&SelectTCP != 0 && md.TCP != nil ||
		s&SelectTLS != 0 && md.TLS != nil ||
		s&SelectHTTP != 0 && md.HTTP != nil ||
		s&SelectDNS != 0 && md.DNS != nil
}
