package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidest-backup/internal/transfer"
)

type driveNode struct {
	name   string
	parent string
}

// fakeDrive keeps folders and uploads in memory
type fakeDrive struct {
	folders   map[string]driveNode
	uploads   map[string]string // "parentID/name" -> content
	nextID    int
	createErr map[string]error // folder name -> error
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		folders:   map[string]driveNode{},
		uploads:   map[string]string{},
		createErr: map[string]error{},
	}
}

func (d *fakeDrive) FindFolder(_ context.Context, name, parentID string) (string, error) {
	for id, n := range d.folders {
		if n.name == name && n.parent == parentID {
			return id, nil
		}
	}
	return "", nil
}

func (d *fakeDrive) CreateFolder(_ context.Context, name, parentID string) (string, error) {
	if err, ok := d.createErr[name]; ok {
		return "", err
	}
	d.nextID++
	id := fmt.Sprintf("id%d", d.nextID)
	d.folders[id] = driveNode{name: name, parent: parentID}
	return id, nil
}

func (d *fakeDrive) Upload(_ context.Context, name, parentID string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	d.uploads[parentID+"/"+name] = string(data)
	return nil
}

// pathOf resolves a folder id to its slash path from the drive root
func (d *fakeDrive) pathOf(id string) string {
	n, ok := d.folders[id]
	if !ok {
		return ""
	}
	if n.parent == "" {
		return n.name
	}
	return d.pathOf(n.parent) + "/" + n.name
}

func (d *fakeDrive) uploadedPaths() map[string]string {
	out := map[string]string{}
	for key, content := range d.uploads {
		dir, name := filepath.Split(key)
		out[d.pathOf(filepath.Clean(dir))+"/"+name] = content
	}
	return out
}

func driveAdapter(d *fakeDrive) *GDriveAdapter {
	return &GDriveAdapter{newService: func(context.Context, string) (DriveService, error) { return d, nil }}
}

func TestGDriveAdapter_UploadsTree(t *testing.T) {
	src := t.TempDir()
	writeFiles(t, src, map[string]string{
		"docs/a.txt":     "a",
		"docs/sub/b.txt": "b",
	})

	d := newFakeDrive()
	m := transfer.NewManager(transfer.NewRegistry(driveAdapter(d)), nil)
	result, err := m.Run(context.Background(), transfer.Request{
		Sources:     []string{filepath.Join(src, "docs")},
		Destination: transfer.DestinationGDrive,
		Config:      transfer.DestinationConfig{"credentials_path": "creds.json", "folder_name": "MyBackups"},
	}, transfer.Sinks{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 0, result.Failed)

	root := "MyBackups/" + transfer.RootName(result.StartedAt)
	assert.Equal(t, map[string]string{
		root + "/docs/a.txt":     "a",
		root + "/docs/sub/b.txt": "b",
	}, d.uploadedPaths())
}

func TestGDriveAdapter_ReusesBaseFolder(t *testing.T) {
	d := newFakeDrive()
	existing, _ := d.CreateFolder(context.Background(), "Backups", "")

	h, err := driveAdapter(d).Prepare(context.Background(), transfer.DestinationConfig{"credentials_path": "c.json"}, "backup_x")
	require.NoError(t, err)
	assert.Equal(t, "gdrive:Backups/backup_x", h.Root())

	var bases int
	for _, n := range d.folders {
		if n.name == "Backups" {
			bases++
		}
	}
	assert.Equal(t, 1, bases)

	rootID, _ := d.FindFolder(context.Background(), "backup_x", existing)
	assert.NotEmpty(t, rootID, "root is created inside the base folder")
}

func TestGDriveAdapter_DirectoryFailures(t *testing.T) {
	d := newFakeDrive()
	d.createErr["broken"] = errors.New("quota exceeded")

	h, err := driveAdapter(d).Prepare(context.Background(), transfer.DestinationConfig{"credentials_path": "c.json"}, "backup_x")
	require.NoError(t, err)

	err = h.EnsureDirectory(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, transfer.IsType(err, transfer.ErrorTypeDirectory))

	// children of a folder that could not be created fail on their own
	err = h.EnsureDirectory(context.Background(), "broken/child")
	require.Error(t, err)

	src := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))
	err = h.WriteFile(context.Background(), src, "broken/f.txt")
	require.Error(t, err)
	assert.True(t, transfer.IsType(err, transfer.ErrorTypeTransfer))

	require.NoError(t, h.EnsureDirectory(context.Background(), "ok"))
	assert.ErrorIs(t, h.EnsureDirectory(context.Background(), "ok"), transfer.ErrAlreadyExists)
}

func TestGDriveAdapter_PrepareFailures(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		_, err := driveAdapter(newFakeDrive()).Prepare(context.Background(), transfer.DestinationConfig{}, "backup_x")
		assert.True(t, transfer.IsType(err, transfer.ErrorTypeValidation))
	})

	t.Run("auth failure", func(t *testing.T) {
		a := &GDriveAdapter{newService: func(context.Context, string) (DriveService, error) {
			return nil, errors.New("invalid_grant")
		}}
		_, err := a.Prepare(context.Background(), transfer.DestinationConfig{"credentials_path": "c.json"}, "backup_x")
		assert.True(t, transfer.IsDestinationUnavailable(err))
	})

	t.Run("root folder failure", func(t *testing.T) {
		d := newFakeDrive()
		d.createErr["backup_x"] = errors.New("forbidden")
		_, err := driveAdapter(d).Prepare(context.Background(), transfer.DestinationConfig{"credentials_path": "c.json"}, "backup_x")
		assert.True(t, transfer.IsDestinationUnavailable(err))
	})
}

func TestEscapeDriveQuery(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeDriveQuery("it's"))
	assert.Equal(t, `a\\b`, escapeDriveQuery(`a\b`))
}
