package privilege

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truebasic2011/mercury/internal/core"
)

func TestDrop_EmptyNameIsNoop(t *testing.T) {
	assert.NoError(t, Drop("", []string{"/does/not/matter"}))
}

func TestLookup_UnknownUser(t *testing.T) {
	_, err := Lookup("no-such-user-mercury-test")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestLookup_CurrentUser(t *testing.T) {
	me, err := user.Current()
	require.NoError(t, err)

	id, err := Lookup(me.Username)
	require.NoError(t, err)
	assert.Equal(t, me.Uid, strconv.Itoa(id.UID))

	byID, err := Lookup(me.Uid)
	require.NoError(t, err)
	assert.Equal(t, id.UID, byID.UID)
}

// Switching to the current user only chowns paths to their existing owner.
func TestDrop_CurrentUser(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	me, err := user.Current()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.NoError(t, Drop(me.Username, []string{path}))
}
