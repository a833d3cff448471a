//go:build !cgo

package source

import (
	"fmt"

	"golang.org/x/net/bpf"

	"github.com/truebasic2011/mercury/internal/core"
)

// CompileBPF needs libpcap; without cgo only `tcpdump -ddd` programs work.
func CompileBPF(expr string, _ int) ([]bpf.RawInstruction, error) {
	return nil, fmt.Errorf("compile bpf filter %q without cgo, pass tcpdump -ddd output instead: %w",
		expr, core.ErrNotSupported)
}
