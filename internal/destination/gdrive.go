package destination

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"multidest-backup/internal/transfer"
)

const (
	driveFolderMimeType = "application/vnd.google-apps.folder"
	defaultDriveFolder  = "Backups"
)

// DriveService is the subset of the Drive API the adapter needs.
// An empty parentID means the root of "My Drive".
type DriveService interface {
	FindFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, name, parentID string, content io.Reader) error
}

// DriveServiceFactory builds a DriveService from a credentials file
type DriveServiceFactory func(ctx context.Context, credentialsPath string) (DriveService, error)

// GDriveAdapter uploads backups to Google Drive. Every folder is created
// explicitly and referenced by id when its children are uploaded.
type GDriveAdapter struct {
	newService DriveServiceFactory
}

// NewGDriveAdapter creates a GDriveAdapter backed by the Drive v3 API
func NewGDriveAdapter() *GDriveAdapter {
	return &GDriveAdapter{newService: newDriveService}
}

func (a *GDriveAdapter) Kind() transfer.DestinationKind { return transfer.DestinationGDrive }

func (a *GDriveAdapter) ProgressEvery() int { return transfer.ProgressEveryUpload }

// Prepare finds or creates the configured base folder and creates the run
// root inside it.
func (a *GDriveAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	if err := cfg.Require("credentials_path"); err != nil {
		return nil, invalidConfig(transfer.DestinationGDrive, err)
	}
	folder := cfg.GetDefault("folder_name", defaultDriveFolder)

	svc, err := a.newService(ctx, cfg.Get("credentials_path"))
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError("cannot authenticate with Google Drive", err).
			WithRemediation("Check the credentials file path and that the account has Drive access.")
	}

	baseID, err := svc.FindFolder(ctx, folder, "")
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot look up Google Drive folder %q", folder), err)
	}
	if baseID == "" {
		if baseID, err = svc.CreateFolder(ctx, folder, ""); err != nil {
			return nil, transfer.NewDestinationUnavailableError(
				fmt.Sprintf("cannot create Google Drive folder %q", folder), err)
		}
	}

	rootID, err := svc.CreateFolder(ctx, rootName, baseID)
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot create Google Drive folder %s/%s", folder, rootName), err)
	}

	return &driveHandle{
		svc:     svc,
		display: fmt.Sprintf("gdrive:%s/%s", folder, rootName),
		ids:     map[string]string{".": rootID},
	}, nil
}

// driveHandle maps run-relative directory paths to Drive folder ids
type driveHandle struct {
	svc     DriveService
	display string
	ids     map[string]string
}

func (h *driveHandle) Root() string { return h.display }

func (h *driveHandle) EnsureDirectory(ctx context.Context, rel string) error {
	if _, ok := h.ids[rel]; ok {
		return transfer.AlreadyExists(rel, fmt.Errorf("folder %s already created", rel))
	}
	parentID, err := h.parent(rel)
	if err != nil {
		return transfer.NewDirectoryError(rel, err)
	}
	id, err := h.svc.CreateFolder(ctx, path.Base(rel), parentID)
	if err != nil {
		return transfer.NewDirectoryError(rel, err)
	}
	h.ids[rel] = id
	return nil
}

func (h *driveHandle) WriteFile(ctx context.Context, localPath, rel string) error {
	parentID, err := h.parent(rel)
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	defer f.Close()

	if err := h.svc.Upload(ctx, path.Base(rel), parentID, f); err != nil {
		return transfer.NewFileTransferError(localPath, err)
	}
	return nil
}

func (h *driveHandle) Close() error { return nil }

func (h *driveHandle) parent(rel string) (string, error) {
	dir := path.Dir(rel)
	id, ok := h.ids[dir]
	if !ok {
		return "", fmt.Errorf("parent folder %s was not created", dir)
	}
	return id, nil
}

// driveClient implements DriveService on top of drive/v3
type driveClient struct {
	svc *drive.Service
}

func newDriveService(ctx context.Context, credentialsPath string) (DriveService, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(expandHome(credentialsPath)),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, err
	}
	return &driveClient{svc: svc}, nil
}

func (c *driveClient) FindFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeDriveQuery(name), driveFolderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeDriveQuery(parentID))
	} else {
		q += " and 'root' in parents"
	}

	list, err := c.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func (c *driveClient) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	folder := &drive.File{Name: name, MimeType: driveFolderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	created, err := c.svc.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func (c *driveClient) Upload(ctx context.Context, name, parentID string, content io.Reader) error {
	file := &drive.File{Name: name, Parents: []string{parentID}}
	_, err := c.svc.Files.Create(file).Media(content).Fields("id").Context(ctx).Do()
	return err
}

func escapeDriveQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
