package source

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/bpf"

	"github.com/truebasic2011/mercury/internal/core"
)

// LoadFilter turns a --bpf value into a program. Text whose first line is an
// instruction count is taken as `tcpdump -ddd` output; anything else is a
// filter expression compiled by CompileBPF.
func LoadFilter(text string, snapLen int) ([]bpf.RawInstruction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	first, _, _ := strings.Cut(strings.ReplaceAll(text, ",", "\n"), "\n")
	if _, err := strconv.Atoi(strings.TrimSpace(first)); err == nil {
		return ParseBPF(text)
	}
	return CompileBPF(text, snapLen)
}

// ParseBPF parses a classic BPF program in `tcpdump -ddd` form: an instruction
// count followed by one "code jt jf k" line per instruction. Lines may also be
// separated by commas so the program fits in a single flag value.
func ParseBPF(text string) ([]bpf.RawInstruction, error) {
	text = strings.ReplaceAll(text, ",", "\n")
	sc := bufio.NewScanner(strings.NewReader(text))

	var lines []string
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty bpf program: %w", core.ErrConfigInvalid)
	}

	n, err := strconv.Atoi(lines[0])
	if err != nil {
		return nil, fmt.Errorf("bpf instruction count %q: %w", lines[0], core.ErrConfigInvalid)
	}
	if n != len(lines)-1 {
		return nil, fmt.Errorf("bpf program declares %d instructions, found %d: %w", n, len(lines)-1, core.ErrConfigInvalid)
	}

	raw := make([]bpf.RawInstruction, 0, n)
	for i, line := range lines[1:] {
		f := strings.Fields(line)
		if len(f) != 4 {
			return nil, fmt.Errorf("bpf instruction %d %q: want 4 fields: %w", i, line, core.ErrConfigInvalid)
		}
		var v [4]uint64
		for j, s := range f {
			bits := 8
			if j == 0 {
				bits = 16
			} else if j == 3 {
				bits = 32
			}
			v[j], err = strconv.ParseUint(s, 10, bits)
			if err != nil {
				return nil, fmt.Errorf("bpf instruction %d field %d %q: %w", i, j, s, core.ErrConfigInvalid)
			}
		}
		raw = append(raw, bpf.RawInstruction{
			Op: uint16(v[0]),
			Jt: uint8(v[1]),
			Jf: uint8(v[2]),
			K:  uint32(v[3]),
		})
	}

	if _, ok := bpf.Disassemble(raw); !ok {
		return nil, fmt.Errorf("bpf program contains unknown opcodes: %w", core.ErrConfigInvalid)
	}
	return raw, nil
}
