// Package privilege drops root privileges once capture sockets are bound.
package privilege

import (
	"fmt"
	"os/user"
	"strconv"

	"github.com/truebasic2011/mercury/internal/core"
)

// Identity is the numeric user and group to switch to.
type Identity struct {
	Name string
	UID  int
	GID  int
}

// Lookup resolves a user name (or numeric uid) to an Identity.
func Lookup(name string) (Identity, error) {
	u, err := user.Lookup(name)
	if err != nil {
		u, err = user.LookupId(name)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("user %q: %w: %w", name, core.ErrConfigInvalid, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q uid %q: %w", name, u.Uid, core.ErrNotSupported)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Identity{}, fmt.Errorf("user %q gid %q: %w", name, u.Gid, core.ErrNotSupported)
	}
	return Identity{Name: u.Username, UID: uid, GID: gid}, nil
}

// Drop hands ownership of paths to the named user, then switches the process
// to that user. An empty name is a no-op.
func Drop(name string, paths []string) error {
	if name == "" {
		return nil
	}
	id, err := Lookup(name)
	if err != nil {
		return err
	}
	return drop(id, paths)
}
