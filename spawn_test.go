//go:build linux || darwin || freebsd

package buildio

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axondata/go-buildio/internal/platform"
)

// spawnCapturingStderr runs body with its stderr connected to a pipe and
// returns the exit status and everything written to stderr.
func spawnCapturingStderr(t *testing.T, body string, opts SpawnOptions) (WaitStatus, string) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	opts.Stderr = w
	h, err := Spawn(body, opts)
	_ = w.Close()
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	status, err := h.Wait(context.Background())
	require.NoError(t, err)
	return status, string(out)
}

func TestSpawnBodyExitStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		prefix     string
		wantStatus int
		wantStderr string
	}{
		{name: "success", body: bodyExitOK, wantStatus: 0},
		{name: "explicit exit", body: bodyExitSeven, wantStatus: 7},
		{name: "error", body: bodyFail, prefix: "child: ", wantStatus: 1, wantStderr: "child: boom\n"},
		{name: "error without prefix", body: bodyFail, wantStatus: 1, wantStderr: "boom\n"},
		{name: "panic", body: bodyPanic, prefix: "child: ", wantStatus: 1, wantStderr: "child: panic: kaboom\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, stderr := spawnCapturingStderr(t, tt.body, SpawnOptions{ErrorPrefix: tt.prefix})
			require.True(t, status.Exited())
			assert.Equal(t, tt.wantStatus, status.ExitStatus())
			assert.Equal(t, tt.wantStderr, stderr)
		})
	}
}

func TestSpawnEnvironment(t *testing.T) {
	env := append(os.Environ(), testEnvKey+"="+testEnvValue)
	status, stderr := spawnCapturingStderr(t, bodyCheckEnv, SpawnOptions{Env: env})
	assert.True(t, StatusOK(status), stderr)

	status, stderr = spawnCapturingStderr(t, bodyCheckEnv, SpawnOptions{Env: []string{}})
	assert.False(t, StatusOK(status))
	assert.Contains(t, stderr, "missing "+testEnvKey)
}

func TestSpawnCloneFlags(t *testing.T) {
	_, err := Spawn(bodyExitOK, SpawnOptions{CloneFlags: platform.CloneVM})
	assert.ErrorIs(t, err, ErrCloneFlagsIncompatible)

	if !platform.CloneSupported {
		// CLONE_NEWNS
		_, err := Spawn(bodyExitOK, SpawnOptions{CloneFlags: 0x00020000})
		assert.ErrorIs(t, err, ErrCloneUnsupported)
	}
}

func TestSpawnRawOwnership(t *testing.T) {
	h, err := Spawn(bodyExitOK, SpawnOptions{Ownership: OwnershipRaw})
	require.NoError(t, err)
	assert.Equal(t, OwnershipRaw, h.Ownership())
	require.NoError(t, h.Close())
}

func TestSpawnDir(t *testing.T) {
	dir := t.TempDir()
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	h, err := Spawn(bodyPrintDir, SpawnOptions{Dir: dir, Stdout: w})
	_ = w.Close()
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	status, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, StatusOK(status))

	got, err := filepath.EvalSymlinks(string(out))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Spawn(bodyExitOK, SpawnOptions{Dir: filepath.Join(dir, "missing")})
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCredential(t *testing.T) {
	uid := uint32(1234)
	gid := uint32(5678)

	tests := []struct {
		name        string
		uid         *uint32
		gid         *uint32
		wantNil     bool
		wantUID     uint32
		wantGID     uint32
		noSetGroups bool
	}{
		{name: "inherit", wantNil: true},
		{name: "uid only", uid: &uid, wantUID: uid, wantGID: uint32(os.Getgid()), noSetGroups: true},
		{name: "gid only", gid: &gid, wantUID: uint32(os.Getuid()), wantGID: gid},
		{name: "uid and gid", uid: &uid, gid: &gid, wantUID: uid, wantGID: gid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := credential(tt.uid, tt.gid)
			if tt.wantNil {
				assert.Nil(t, cred)
				return
			}
			require.NotNil(t, cred)
			assert.Equal(t, tt.wantUID, cred.Uid)
			assert.Equal(t, tt.wantGID, cred.Gid)
			assert.Equal(t, tt.noSetGroups, cred.NoSetGroups)
			assert.Empty(t, cred.Groups, "supplementary groups are cleared when a gid is dropped")
		})
	}
}

func TestKillUserRefusesRoot(t *testing.T) {
	err := KillUser(context.Background(), 0)
	assert.ErrorIs(t, err, ErrKillRoot)
}
