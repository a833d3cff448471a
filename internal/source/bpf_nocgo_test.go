//go:build !cgo

package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/truebasic2011/mercury/internal/core"
)

func TestCompileBPF_NeedsCgo(t *testing.T) {
	_, err := LoadFilter("tcp port 443", 65535)
	assert.ErrorIs(t, err, core.ErrNotSupported)
}
