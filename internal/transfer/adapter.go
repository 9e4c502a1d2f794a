package transfer

import (
	"context"
)

// Adapter knows how to open a run against one backend kind.
// Implementations must not keep state between runs; everything a run needs
// lives in the Handle returned by Prepare.
type Adapter interface {
	Kind() DestinationKind

	// ProgressEvery is the number of files between progress updates while
	// walking a directory source.
	ProgressEvery() int

	// Prepare connects/authenticates and creates the run root named rootName
	// under the configured base. Any failure is fatal for the run.
	Prepare(ctx context.Context, config DestinationConfig, rootName string) (Handle, error)
}

// Handle is the per-run destination session. All relative paths are
// slash separated and relative to the run root.
type Handle interface {
	// Root describes where the run is being written (for logs and results)
	Root() string

	// EnsureDirectory creates rel. A directory that already exists is reported
	// with an error wrapping ErrAlreadyExists.
	EnsureDirectory(ctx context.Context, rel string) error

	// WriteFile copies the local file to rel
	WriteFile(ctx context.Context, localPath, rel string) error

	// Close releases the session. Errors are logged, never fatal.
	Close() error
}

// Progress cadences used by the built-in adapters
const (
	ProgressEveryFilesystem = 10
	ProgressEveryUpload     = 5
)
