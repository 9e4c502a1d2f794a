package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"multidest-backup/internal/transfer"
)

const (
	defaultDropboxFolder = "/Backups"

	// files larger than this go through an upload session
	dropboxSingleUploadLimit = 150 << 20
	dropboxChunkSize         = 8 << 20
)

// DropboxFiles is the subset of the Dropbox files API the adapter needs
type DropboxFiles interface {
	CreateFolder(ctx context.Context, path string) error
	Upload(ctx context.Context, path string, content io.Reader, size int64, modified time.Time) error
}

// DropboxFactory builds a DropboxFiles client from an access token
type DropboxFactory func(token string) DropboxFiles

// DropboxAdapter uploads backups below a Dropbox folder path
type DropboxAdapter struct {
	newClient DropboxFactory
}

// NewDropboxAdapter creates a DropboxAdapter backed by the Dropbox v2 API
func NewDropboxAdapter() *DropboxAdapter {
	return &DropboxAdapter{newClient: newDropboxClient}
}

func (a *DropboxAdapter) Kind() transfer.DestinationKind { return transfer.DestinationDropbox }

func (a *DropboxAdapter) ProgressEvery() int { return transfer.ProgressEveryUpload }

func (a *DropboxAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	if err := cfg.Require("token"); err != nil {
		return nil, invalidConfig(transfer.DestinationDropbox, err)
	}

	base := normalizeDropboxPath(cfg.GetDefault("folder_path", defaultDropboxFolder))
	root := path.Join(base, rootName)

	client := a.newClient(cfg.Get("token"))
	if err := client.CreateFolder(ctx, root); err != nil && !isDropboxConflict(err) {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot create Dropbox folder %s", root), err).
			WithRemediation("Check that the access token is valid and has files.content.write permission.")
	}

	return &dropboxHandle{client: client, root: root}, nil
}

type dropboxHandle struct {
	client DropboxFiles
	root   string
}

func (h *dropboxHandle) Root() string { return "dropbox:" + h.root }

func (h *dropboxHandle) EnsureDirectory(ctx context.Context, rel string) error {
	err := h.client.CreateFolder(ctx, path.Join(h.root, rel))
	if err == nil {
		return nil
	}
	if isDropboxConflict(err) {
		return transfer.AlreadyExists(rel, err)
	}
	return transfer.NewDirectoryError(rel, err)
}

func (h *dropboxHandle) WriteFile(ctx context.Context, localPath, rel string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	if err := h.client.Upload(ctx, path.Join(h.root, rel), f, info.Size(), info.ModTime()); err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	return nil
}

func (h *dropboxHandle) Close() error { return nil }

func normalizeDropboxPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// isDropboxConflict reports whether CreateFolder failed because a folder is
// already at the path. A file in the way is a conflict too, but not one a
// backup can write into.
func isDropboxConflict(err error) bool {
	var apiErr files.CreateFolderV2APIError
	if errors.As(err, &apiErr) {
		return isFolderConflict(apiErr.EndpointError)
	}
	var apiPtr *files.CreateFolderV2APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return isFolderConflict(apiPtr.EndpointError)
	}
	return false
}

func isFolderConflict(e *files.CreateFolderError) bool {
	if e == nil || e.Tag != files.CreateFolderErrorPath || e.Path == nil {
		return false
	}
	return e.Path.Tag == files.WriteErrorConflict &&
		e.Path.Conflict != nil &&
		e.Path.Conflict.Tag == files.WriteConflictErrorFolder
}

// dropboxClient implements DropboxFiles with the official SDK. The SDK has no
// context support; ctx is checked between chunks.
type dropboxClient struct {
	files files.Client
}

func newDropboxClient(token string) DropboxFiles {
	return &dropboxClient{files: files.New(dropbox.Config{Token: token})}
}

func (c *dropboxClient) CreateFolder(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.files.CreateFolderV2(files.NewCreateFolderArg(p))
	return err
}

func (c *dropboxClient) Upload(ctx context.Context, p string, content io.Reader, size int64, modified time.Time) error {
	commit := files.NewCommitInfo(p)
	commit.Mode = &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
	mtime := modified.UTC().Truncate(time.Second)
	commit.ClientModified = &mtime

	if size <= dropboxSingleUploadLimit {
		arg := files.NewUploadArg(p)
		arg.CommitInfo = *commit
		_, err := c.files.Upload(arg, content)
		return err
	}
	return c.uploadSession(ctx, commit, content, size)
}

func (c *dropboxClient) uploadSession(ctx context.Context, commit *files.CommitInfo, content io.Reader, size int64) error {
	start, err := c.files.UploadSessionStart(files.NewUploadSessionStartArg(),
		io.LimitReader(content, dropboxChunkSize))
	if err != nil {
		return fmt.Errorf("start upload session: %w", err)
	}

	offset := uint64(dropboxChunkSize)
	for int64(offset)+dropboxChunkSize < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		cursor := files.NewUploadSessionCursor(start.SessionId, offset)
		if err := c.files.UploadSessionAppendV2(files.NewUploadSessionAppendArg(cursor),
			io.LimitReader(content, dropboxChunkSize)); err != nil {
			return fmt.Errorf("append upload session at %d: %w", offset, err)
		}
		offset += dropboxChunkSize
	}

	cursor := files.NewUploadSessionCursor(start.SessionId, offset)
	if _, err := c.files.UploadSessionFinish(files.NewUploadSessionFinishArg(cursor, commit), content); err != nil {
		return fmt.Errorf("finish upload session: %w", err)
	}
	return nil
}
