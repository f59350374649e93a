package buildio

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
)

// downloadFile streams a local file through the same worker and buffer as
// a network transfer. There are no redirects and no content codings.
func (e *Engine) downloadFile(ctx context.Context, rawURL string, u *url.URL) (*TransferResult, Source, error) {
	path := u.Path
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, e.setupFailure(rawURL, 0, &OpError{Op: OpOpen, Path: path, Err: err})
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, e.setupFailure(rawURL, 0, &OpError{Op: OpOpen, Path: path, Err: err})
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, nil, e.setupFailure(rawURL, 0, &OpError{Op: OpOpen, Path: path, Err: errors.New("is a directory")})
	}

	result := &TransferResult{URL: rawURL, FinalURL: rawURL, ContentLength: -1}
	if fi.Mode().IsRegular() {
		result.ContentLength = fi.Size()
	}

	t, err := e.register(ctx, rawURL)
	if err != nil {
		_ = f.Close()
		return nil, nil, e.setupFailure(rawURL, 0, err)
	}
	if !e.start(t, f, nil) {
		return result, nil, e.setupFailure(rawURL, 0, ErrEngineClosed)
	}
	return result, t.source(), nil
}

func fileExists(rawURL string, u *url.URL) (bool, error) {
	_, err := os.Stat(u.Path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return false, nil
	default:
		return false, &TransferError{Kind: KindSetup, URL: rawURL, Err: &OpError{Op: OpOpen, Path: u.Path, Err: err}}
	}
}
