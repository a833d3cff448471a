//go:build !linux

package privilege

import (
	"fmt"

	"github.com/truebasic2011/mercury/internal/core"
)

func drop(id Identity, _ []string) error {
	return fmt.Errorf("switch to user %s: %w", id.Name, core.ErrNotSupported)
}
