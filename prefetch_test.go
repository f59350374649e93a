package buildio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefetch(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, "body of %s", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var items []PrefetchItem
	for i := 0; i < 6; i++ {
		items = append(items, PrefetchItem{
			URL:  fmt.Sprintf("%s/f%d", srv.URL, i),
			Path: filepath.Join(dir, fmt.Sprintf("f%d", i)),
		})
	}
	items = append(items, PrefetchItem{URL: srv.URL + "/missing", Path: filepath.Join(dir, "missing")})

	p := NewPrefetcher(newTestEngine(t), WithConcurrency(2), WithTimeout(time.Minute))
	results, err := p.Prefetch(context.Background(), items...)
	require.Error(t, err)

	var merr *MultiError
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))

	for i := 0; i < 6; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("f%d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("body of /f%d", i), string(data))
	}
	_, err = os.Stat(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}

func TestPrefetchNothing(t *testing.T) {
	results, err := NewPrefetcher(nil).Prefetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPrefetcherOptions(t *testing.T) {
	p := NewPrefetcher(nil, WithConcurrency(0), WithFileMode(0o600))
	assert.Equal(t, 1, p.Concurrency)
	assert.Equal(t, os.FileMode(0o600), p.FileMode)
	assert.Equal(t, 10*time.Minute, p.Timeout)
}
