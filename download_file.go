package buildio

import (
	"context"
	"os"

	"github.com/google/renameio/v2"
)

// DownloadToFile retrieves url into path. The file appears atomically with
// the given mode once the whole body has arrived; a failed transfer leaves
// any existing file at path untouched.
func DownloadToFile(ctx context.Context, e *Engine, url, path string, mode os.FileMode) (*TransferResult, error) {
	result, src, err := e.Download(ctx, url)
	if err != nil {
		return result, err
	}
	defer src.Close()

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(mode))
	if err != nil {
		return result, &OpError{Op: OpWrite, Path: path, Err: err}
	}
	defer func() { _ = pf.Cleanup() }()

	if err := DrainInto(src, pf); err != nil {
		return result, err
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return result, &OpError{Op: OpWrite, Path: path, Err: err}
	}
	return result, nil
}
