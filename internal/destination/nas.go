package destination

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"time"

	"github.com/hirochachacha/go-smb2"

	"multidest-backup/internal/transfer"
)

const (
	defaultSMBPort = "445"
	smbDialTimeout = 15 * time.Second

	// NTSTATUS STATUS_OBJECT_NAME_COLLISION
	statusObjectNameCollision uint32 = 0xC0000035
)

// SMBSettings is the validated NAS configuration
type SMBSettings struct {
	Server   string
	Port     string
	Share    string
	Username string
	Password string
	Domain   string
}

func smbSettingsFrom(cfg transfer.DestinationConfig) (SMBSettings, error) {
	if err := cfg.Require("server", "share", "username"); err != nil {
		return SMBSettings{}, err
	}
	return SMBSettings{
		Server:   cfg.Get("server"),
		Port:     cfg.GetDefault("port", defaultSMBPort),
		Share:    cfg.Get("share"),
		Username: cfg.Get("username"),
		Password: cfg["password"],
		Domain:   cfg.Get("domain"),
	}, nil
}

// SMBDialFunc opens an authenticated, mounted share
type SMBDialFunc func(ctx context.Context, s SMBSettings) (treeFS, error)

// NASAdapter writes backups to an SMB share. A session is registered with
// the server's credentials before the share is mounted.
type NASAdapter struct {
	dial SMBDialFunc
}

// NewNASAdapter creates a NASAdapter using go-smb2
func NewNASAdapter() *NASAdapter {
	return &NASAdapter{dial: dialSMB}
}

func (a *NASAdapter) Kind() transfer.DestinationKind { return transfer.DestinationNAS }

func (a *NASAdapter) ProgressEvery() int { return transfer.ProgressEveryFilesystem }

func (a *NASAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	settings, err := smbSettingsFrom(cfg)
	if err != nil {
		return nil, invalidConfig(transfer.DestinationNAS, err)
	}

	share, err := a.dial(ctx, settings)
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot connect to NAS \\\\%s\\%s", settings.Server, settings.Share), err).
			WithRemediation("Check the server, user and password.")
	}

	display := fmt.Sprintf("\\\\%s\\%s\\%s", settings.Server, settings.Share, rootName)
	h, err := prepareTree(ctx, share, rootName, display, isSMBCollision)
	if err != nil {
		if te, ok := err.(*transfer.TransferError); ok {
			te.WithRemediation("Check the server, user and password.")
		}
		return nil, err
	}
	return h, nil
}

func isSMBCollision(err error) bool {
	var re *smb2.ResponseError
	return errors.As(err, &re) && re.Code == statusObjectNameCollision
}

// smbShare adapts a mounted go-smb2 share to treeFS
type smbShare struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func dialSMB(ctx context.Context, s SMBSettings) (treeFS, error) {
	d := net.Dialer{Timeout: smbDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.Server, s.Port))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.Server, err)
	}

	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     s.Username,
			Password: s.Password,
			Domain:   s.Domain,
		},
	}
	session, err := dialer.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}

	share, err := session.Mount(s.Share)
	if err != nil {
		_ = session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("mount %s: %w", s.Share, err)
	}

	return &smbShare{conn: conn, session: session, share: share}, nil
}

func (s *smbShare) Mkdir(ctx context.Context, name string) error {
	return s.share.WithContext(ctx).Mkdir(name, 0755)
}

func (s *smbShare) Create(ctx context.Context, name string, _ fs.FileMode) (io.WriteCloser, error) {
	return s.share.WithContext(ctx).Create(name)
}

func (s *smbShare) Chtimes(ctx context.Context, name string, mtime time.Time) error {
	return s.share.WithContext(ctx).Chtimes(name, mtime, mtime)
}

func (s *smbShare) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	return s.share.WithContext(ctx).Stat(name)
}

func (s *smbShare) Close() error {
	_ = s.share.Umount()
	_ = s.session.Logoff()
	return s.conn.Close()
}
