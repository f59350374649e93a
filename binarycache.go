package buildio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// BinaryCache reads files from a binary cache served over HTTP(S), or from
// a local directory through a file URL.
type BinaryCache struct {
	uri    string
	engine *Engine

	tryFallback     bool
	disableDuration time.Duration
	now             func() time.Time

	mu            sync.Mutex
	enabled       bool
	disabledUntil time.Time
}

// BinaryCacheOption configures a BinaryCache
type BinaryCacheOption func(*BinaryCache)

// WithTryFallback makes the cache disable itself for a while after a
// failure other than a missing file, so callers can fall back to building
func WithTryFallback(enabled bool) BinaryCacheOption {
	return func(c *BinaryCache) {
		c.tryFallback = enabled
	}
}

// WithDisableDuration sets how long a failed cache stays disabled
func WithDisableDuration(d time.Duration) BinaryCacheOption {
	return func(c *BinaryCache) {
		c.disableDuration = d
	}
}

// NewBinaryCache creates a client for the cache at uri. A trailing slash is
// dropped.
func NewBinaryCache(engine *Engine, uri string, opts ...BinaryCacheOption) (*BinaryCache, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &OpError{Op: OpConfig, Path: uri, Err: err}
	}
	if u.Scheme != "file" && !isHTTPScheme(u) {
		return nil, &OpError{Op: OpConfig, Path: uri, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	c := &BinaryCache{
		uri:             strings.TrimSuffix(uri, "/"),
		engine:          engine,
		disableDuration: DefaultCacheDisableDuration,
		now:             time.Now,
		enabled:         true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URI returns the normalized cache URI
func (c *BinaryCache) URI() string {
	return c.uri
}

// MakeURI returns the URL of path within the cache. Absolute http, https and
// file URLs are returned unchanged.
func (c *BinaryCache) MakeURI(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "file://") {
		return path
	}
	return c.uri + "/" + path
}

// checkEnabled fails while the cache is disabled, and re-enables it once
// the disable window has passed
func (c *BinaryCache) checkEnabled() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled {
		return nil
	}
	if c.now().After(c.disabledUntil) {
		c.enabled = true
		Logger().Debug("re-enabling binary cache", "uri", c.uri)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrCacheDisabled, c.uri)
}

// maybeDisable disables the cache after a failure when fallback is on
func (c *BinaryCache) maybeDisable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || !c.tryFallback {
		return
	}
	Logger().Error("disabling binary cache", "uri", c.uri, "duration", c.disableDuration)
	c.enabled = false
	c.disabledUntil = c.now().Add(c.disableDuration)
}

// Enabled reports whether the cache currently accepts requests
func (c *BinaryCache) Enabled() bool {
	return c.checkEnabled() == nil
}

// FileExists reports whether path exists in the cache
func (c *BinaryCache) FileExists(ctx context.Context, path string) (bool, error) {
	if err := c.checkEnabled(); err != nil {
		return false, err
	}
	ok, err := c.engine.Exists(ctx, c.MakeURI(path))
	if err != nil {
		c.maybeDisable()
		return false, err
	}
	return ok, nil
}

// GetFile streams path from the cache. A missing or forbidden file fails
// with ErrNoSuchFile.
func (c *BinaryCache) GetFile(ctx context.Context, path string) (Source, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, err
	}
	_, src, err := c.engine.Download(ctx, c.MakeURI(path))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return nil, fmt.Errorf("%w: file %q does not exist in binary cache %q", ErrNoSuchFile, path, c.uri)
		}
		c.maybeDisable()
		return nil, err
	}
	return src, nil
}

// GetFileContents reads path from the cache. A missing or forbidden file
// returns false and no error.
func (c *BinaryCache) GetFileContents(ctx context.Context, path string) ([]byte, bool, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, false, err
	}
	_, src, err := c.engine.Download(ctx, c.MakeURI(path))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return nil, false, nil
		}
		c.maybeDisable()
		return nil, false, err
	}
	defer src.Close()

	data, err := Drain(src)
	if err != nil {
		c.maybeDisable()
		return nil, false, err
	}
	return data, true, nil
}
