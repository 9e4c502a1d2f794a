package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"multidest-backup/internal/transfer"
)

// LocalAdapter writes backups to a directory on a mounted filesystem
type LocalAdapter struct{}

// NewLocalAdapter creates a new LocalAdapter
func NewLocalAdapter() *LocalAdapter {
	return &LocalAdapter{}
}

func (a *LocalAdapter) Kind() transfer.DestinationKind { return transfer.DestinationLocal }

func (a *LocalAdapter) ProgressEvery() int { return transfer.ProgressEveryFilesystem }

// Prepare creates <path>/<rootName>. The base directory is created when
// missing and probed for write access before the root is made.
func (a *LocalAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	if err := cfg.Require("path"); err != nil {
		return nil, invalidConfig(transfer.DestinationLocal, err)
	}

	base, err := filepath.Abs(cfg.Get("path"))
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError("invalid destination path", err)
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot create destination directory %s", base), err).
			WithRemediation("Check that the destination path exists and is writable.")
	}

	if err := probeWritable(base); err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("destination %s is not writable", base), err).
			WithRemediation("Check the permissions of the destination directory.")
	}

	return prepareTree(ctx, osFS{base: base}, rootName, filepath.Join(base, rootName), nil)
}

// probeWritable creates and removes a temporary file in dir
func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".backup-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
