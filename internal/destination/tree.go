package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"multidest-backup/internal/transfer"
)

// treeFS is a hierarchical filesystem reached over some transport. Names are
// slash separated; how they map onto the backend is up to the implementation.
type treeFS interface {
	Mkdir(ctx context.Context, name string) error
	Create(ctx context.Context, name string, perm fs.FileMode) (io.WriteCloser, error)
	Chtimes(ctx context.Context, name string, mtime time.Time) error
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	Close() error
}

// fsHandle writes a run into a treeFS below root
type fsHandle struct {
	fs      treeFS
	root    string
	display string

	// collision reports backend specific "already exists" errors
	collision func(error) bool
}

// prepareTree creates the run root and returns the handle for it. The
// filesystem is closed when the root cannot be created.
func prepareTree(ctx context.Context, tfs treeFS, root, display string, collision func(error) bool) (*fsHandle, error) {
	h := &fsHandle{fs: tfs, root: root, display: display, collision: collision}
	if err := tfs.Mkdir(ctx, root); err != nil && !h.exists(ctx, root, err) {
		_ = tfs.Close()
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot create backup root %s", display), err)
	}
	return h, nil
}

func (h *fsHandle) Root() string { return h.display }

func (h *fsHandle) EnsureDirectory(ctx context.Context, rel string) error {
	name := path.Join(h.root, rel)
	err := h.fs.Mkdir(ctx, name)
	if err == nil {
		return nil
	}
	if h.exists(ctx, name, err) {
		return transfer.AlreadyExists(rel, err)
	}
	return transfer.NewDirectoryError(rel, err)
}

func (h *fsHandle) WriteFile(ctx context.Context, localPath, rel string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	name := path.Join(h.root, rel)
	dst, err := h.fs.Create(ctx, name, info.Mode().Perm())
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return transfer.NewFileTransferError(localPath, err)
	}
	if err := dst.Close(); err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	if err := h.fs.Chtimes(ctx, name, info.ModTime()); err != nil {
		return transfer.NewFileTransferError(localPath, fmt.Errorf("preserve modification time: %w", err))
	}
	return nil
}

func (h *fsHandle) Close() error {
	return h.fs.Close()
}

// exists decides whether a failed Mkdir hit an existing directory
func (h *fsHandle) exists(ctx context.Context, name string, err error) bool {
	if errors.Is(err, fs.ErrExist) {
		return true
	}
	if h.collision != nil && h.collision(err) {
		return true
	}
	info, statErr := h.fs.Stat(ctx, name)
	return statErr == nil && info.IsDir()
}

// osFS is a treeFS rooted at a local directory
type osFS struct {
	base string
}

func (o osFS) path(name string) string {
	return filepath.Join(o.base, filepath.FromSlash(name))
}

func (o osFS) Mkdir(_ context.Context, name string) error {
	return os.Mkdir(o.path(name), 0755)
}

func (o osFS) Create(_ context.Context, name string, perm fs.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(o.path(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	// OpenFile only applies perm to new files and is subject to umask
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (o osFS) Chtimes(_ context.Context, name string, mtime time.Time) error {
	return os.Chtimes(o.path(name), mtime, mtime)
}

func (o osFS) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return os.Stat(o.path(name))
}

func (o osFS) Close() error { return nil }
