package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"multidest-backup/internal/transfer"
)

// ObjectStore is a flat key/value blob store. Directories are implied by
// key prefixes.
type ObjectStore interface {
	// Probe verifies the bucket or container is reachable with the credentials
	Probe(ctx context.Context) error
	Put(ctx context.Context, key string, content io.Reader, size int64) error
	// URL renders a key for logs
	URL(key string) string
	Close() error
}

// ObjectStoreOpener validates cfg and opens a store client. It also returns
// the configured key prefix.
type ObjectStoreOpener func(ctx context.Context, cfg transfer.DestinationConfig) (ObjectStore, string, error)

// ObjectAdapter serves every object-store kind (S3, Azure Blob, GCS)
type ObjectAdapter struct {
	kind transfer.DestinationKind
	open ObjectStoreOpener
}

// NewObjectAdapter creates an adapter for kind that opens stores with open
func NewObjectAdapter(kind transfer.DestinationKind, open ObjectStoreOpener) *ObjectAdapter {
	return &ObjectAdapter{kind: kind, open: open}
}

func (a *ObjectAdapter) Kind() transfer.DestinationKind { return a.kind }

func (a *ObjectAdapter) ProgressEvery() int { return transfer.ProgressEveryUpload }

func (a *ObjectAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	store, prefix, err := a.open(ctx, cfg)
	if err != nil {
		if transfer.IsType(err, transfer.ErrorTypeValidation) {
			return nil, err
		}
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot create %s client", a.kind), err)
	}

	if err := store.Probe(ctx); err != nil {
		_ = store.Close()
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("%s destination is not accessible", a.kind), err).
			WithRemediation("Check the bucket or container name and the credentials.")
	}

	root := path.Join(strings.Trim(prefix, "/"), rootName)
	return &objectHandle{store: store, root: root}, nil
}

type objectHandle struct {
	store ObjectStore
	root  string
}

func (h *objectHandle) Root() string { return h.store.URL(h.root) }

// EnsureDirectory is a no-op; keys carry the hierarchy
func (h *objectHandle) EnsureDirectory(context.Context, string) error { return nil }

func (h *objectHandle) WriteFile(ctx context.Context, localPath, rel string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	if err := h.store.Put(ctx, path.Join(h.root, rel), f, info.Size()); err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	return nil
}

func (h *objectHandle) Close() error {
	return h.store.Close()
}
