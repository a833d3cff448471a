//go:build linux

package privilege

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// drop chowns paths and switches gid before uid; after Setuid the process
// could no longer change its groups.
func drop(id Identity, paths []string) error {
	for _, p := range paths {
		if err := os.Lchown(p, id.UID, id.GID); err != nil {
			return fmt.Errorf("chown %s to %s: %w", p, id.Name, err)
		}
	}
	if os.Geteuid() == id.UID {
		return nil
	}
	if err := unix.Setgroups([]int{id.GID}); err != nil {
		return fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setgid(id.GID); err != nil {
		return fmt.Errorf("setgid %d: %w", id.GID, err)
	}
	if err := unix.Setuid(id.UID); err != nil {
		return fmt.Errorf("setuid %d: %w", id.UID, err)
	}
	slog.Info("dropped privileges", "user", id.Name, "uid", id.UID, "gid", id.GID)
	return nil
}
