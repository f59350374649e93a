package buildio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
max_redirects: 3
buffer_size: 4096
immutable_links: last
connect_timeout: 5s
stall_timeout: 1m
user_agent: test-agent/1.0
concurrency: 8
cache:
  uri: https://cache.example/
  try_fallback: true
  disable_duration: 30s
`

func TestParseEngineConfig(t *testing.T) {
	cfg, err := ParseEngineConfig([]byte(sampleConfig))
	require.NoError(t, err)

	require.NotNil(t, cfg.MaxRedirects)
	assert.Equal(t, 3, *cfg.MaxRedirects)
	assert.Equal(t, 4096, cfg.BufferSize)
	assert.Equal(t, "last", cfg.ImmutableLinks)
	assert.Equal(t, 8, cfg.Concurrency)
	require.NotNil(t, cfg.Cache)
	assert.Equal(t, "https://cache.example/", cfg.Cache.URI)
	assert.True(t, cfg.Cache.TryFallback)

	opts, err := cfg.Options()
	require.NoError(t, err)
	e := NewEngine(opts...)
	defer e.Close()

	assert.Equal(t, 3, e.maxRedirects)
	assert.Equal(t, 4096, e.bufferSize)
	assert.Equal(t, LastImmutableLink, e.linkPolicy)
	assert.Equal(t, 5*time.Second, e.connectTimeout)
	assert.Equal(t, time.Minute, e.stallTimeout)
	assert.Equal(t, "test-agent/1.0", e.userAgent)

	cacheOpts, err := cfg.Cache.CacheOptions()
	require.NoError(t, err)
	c, err := NewBinaryCache(e, cfg.Cache.URI, cacheOpts...)
	require.NoError(t, err)
	assert.Equal(t, "https://cache.example", c.URI())
	assert.True(t, c.tryFallback)
	assert.Equal(t, 30*time.Second, c.disableDuration)
}

func TestParseEngineConfigEmpty(t *testing.T) {
	cfg, err := ParseEngineConfig(nil)
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestParseEngineConfigZeroRedirects(t *testing.T) {
	cfg, err := ParseEngineConfig([]byte("max_redirects: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.MaxRedirects)

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}

func TestParseEngineConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseEngineConfig([]byte("max_redirect: 3\n"))
	assert.Error(t, err)
}

func TestEngineConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "negative redirects", yaml: "max_redirects: -1", want: "max_redirects"},
		{name: "negative buffer", yaml: "buffer_size: -5", want: "buffer_size"},
		{name: "bad link policy", yaml: "immutable_links: middle", want: "immutable_links"},
		{name: "bad duration", yaml: "connect_timeout: soon", want: "connect_timeout"},
		{name: "negative duration", yaml: "stall_timeout: -1s", want: "stall_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseEngineConfig([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = cfg.Options()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadEngineConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-agent/1.0", cfg.UserAgent)

	_, err = LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpConfig, opErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
