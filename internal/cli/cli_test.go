//go:build linux || darwin || freebsd

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "buildio ")
	assert.Contains(t, out, "decoders: deflate, gzip")
}

func TestFetchFileURL(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "input")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	out, _, err := runCLI(t, "fetch", "file://"+src)
	require.NoError(t, err)
	assert.Equal(t, "payload", out)

	dst := filepath.Join(dir, "output")
	_, _, err = runCLI(t, "fetch", "file://"+src, "-o", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestExistsCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present"), nil, 0o644))

	_, _, err := runCLI(t, "exists", "file://"+filepath.Join(dir, "present"))
	assert.NoError(t, err)

	_, _, err = runCLI(t, "exists", "file://"+filepath.Join(dir, "absent"))
	assert.Error(t, err)
}

func TestConfigFileIsValidated(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "buildio.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("immutable_links: middle\n"), 0o644))

	_, _, err := runCLI(t, "--config", cfg, "fetch", "file:///dev/null")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable_links")
}

func TestRunCommandCapture(t *testing.T) {
	out, _, err := runCLI(t, "run", "--capture", "--", "sh", "-c", "echo captured")
	require.NoError(t, err)
	assert.Equal(t, "captured\n", out)

	_, _, err = runCLI(t, "run", "--capture", "--", "sh", "-c", "exit 2")
	assert.Error(t, err)
}
