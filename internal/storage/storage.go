// Package storage persists whole documents, such as reconciliation
// artifacts and delta snapshots, to a local directory or an S3 bucket.
package storage

import (
	"context"
)

// FileStore reads and overwrites whole files.
//
// Paths are forward-slash separated and relative to the store root. A Put
// replaces any previous content at the path. Implementations must be safe
// for concurrent use; concurrent Puts to one path are last-writer-wins.
type FileStore interface {
	// Put writes data to path, replacing any existing file.
	Put(ctx context.Context, path string, data []byte) error

	// Get returns the content at path. A missing file yields an error
	// wrapping os.ErrNotExist.
	Get(ctx context.Context, path string) ([]byte, error)
}
