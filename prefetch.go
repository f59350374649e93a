package buildio

import (
	"context"
	"os"
	"sync"
	"time"
)

// PrefetchItem is one URL to fetch and the file it is written to
type PrefetchItem struct {
	URL  string
	Path string
}

// Prefetcher downloads many URLs to files concurrently.
// It provides bulk downloads with configurable concurrency and timeouts.
type Prefetcher struct {
	// Concurrency is the maximum number of concurrent transfers
	Concurrency int
	// Timeout is the per-transfer timeout, covering the whole body
	Timeout time.Duration
	// FileMode is the mode of the written files
	FileMode os.FileMode

	engine *Engine
}

// PrefetchOption configures a Prefetcher
type PrefetchOption func(*Prefetcher)

// WithConcurrency sets the maximum number of concurrent transfers
func WithConcurrency(n int) PrefetchOption {
	return func(p *Prefetcher) {
		p.Concurrency = n
	}
}

// WithTimeout sets the per-transfer timeout
func WithTimeout(d time.Duration) PrefetchOption {
	return func(p *Prefetcher) {
		p.Timeout = d
	}
}

// WithFileMode sets the mode of the written files
func WithFileMode(mode os.FileMode) PrefetchOption {
	return func(p *Prefetcher) {
		p.FileMode = mode
	}
}

// NewPrefetcher creates a Prefetcher over engine with default settings
func NewPrefetcher(engine *Engine, opts ...PrefetchOption) *Prefetcher {
	p := &Prefetcher{
		Concurrency: 4,
		Timeout:     10 * time.Minute,
		FileMode:    0o644,
		engine:      engine,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.Concurrency < 1 {
		p.Concurrency = 1
	}

	return p
}

// Prefetch downloads every item and returns the results of those that
// succeeded, keyed by URL. Failures are collected into a *MultiError.
func (p *Prefetcher) Prefetch(ctx context.Context, items ...PrefetchItem) (map[string]*TransferResult, error) {
	results := make(map[string]*TransferResult)
	if len(items) == 0 {
		return results, nil
	}

	sem := make(chan struct{}, p.Concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	merr := &MultiError{}

	for _, item := range items {
		wg.Add(1)
		go func(it PrefetchItem) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				merr.Add(&OpError{Op: OpDownload, Path: it.URL, Err: ctx.Err()})
				mu.Unlock()
				return
			}

			opCtx := ctx
			if p.Timeout > 0 {
				var cancel context.CancelFunc
				opCtx, cancel = context.WithTimeout(ctx, p.Timeout)
				defer cancel()
			}

			result, err := DownloadToFile(opCtx, p.engine, it.URL, it.Path, p.FileMode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr.Add(err)
				return
			}
			results[it.URL] = result
		}(item)
	}

	wg.Wait()

	return results, merr.Err()
}
