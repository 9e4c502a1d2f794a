package destination

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"multidest-backup/internal/transfer"
)

const (
	defaultSFTPPort = "22"
	sshDialTimeout  = 30 * time.Second
)

// SFTPSettings is the validated SFTP configuration
type SFTPSettings struct {
	Host           string
	Port           string
	Username       string
	Password       string
	KeyPath        string
	BasePath       string
	KnownHostsPath string
}

func sftpSettingsFrom(cfg transfer.DestinationConfig) (SFTPSettings, error) {
	if err := cfg.Require("host", "username"); err != nil {
		return SFTPSettings{}, err
	}
	s := SFTPSettings{
		Host:           cfg.Get("host"),
		Port:           cfg.GetDefault("port", defaultSFTPPort),
		Username:       cfg.Get("username"),
		Password:       cfg["password"],
		KeyPath:        cfg.Get("key_path"),
		BasePath:       cfg.GetDefault("path", "."),
		KnownHostsPath: cfg.Get("known_hosts"),
	}
	if s.Password == "" && s.KeyPath == "" {
		var errs transfer.ValidationErrors
		errs.Add("password", "either password or key_path is required", nil)
		return SFTPSettings{}, errs
	}
	return s, nil
}

// SFTPDialFunc opens a remote filesystem over SSH
type SFTPDialFunc func(ctx context.Context, s SFTPSettings) (treeFS, error)

// SFTPAdapter writes backups to a directory on an SSH server
type SFTPAdapter struct {
	dial SFTPDialFunc
}

// NewSFTPAdapter creates an SFTPAdapter using pkg/sftp
func NewSFTPAdapter() *SFTPAdapter {
	return &SFTPAdapter{dial: dialSFTP}
}

func (a *SFTPAdapter) Kind() transfer.DestinationKind { return transfer.DestinationSFTP }

func (a *SFTPAdapter) ProgressEvery() int { return transfer.ProgressEveryUpload }

func (a *SFTPAdapter) Prepare(ctx context.Context, cfg transfer.DestinationConfig, rootName string) (transfer.Handle, error) {
	settings, err := sftpSettingsFrom(cfg)
	if err != nil {
		return nil, invalidConfig(transfer.DestinationSFTP, err)
	}

	remote, err := a.dial(ctx, settings)
	if err != nil {
		return nil, transfer.NewDestinationUnavailableError(
			fmt.Sprintf("cannot connect to SFTP server %s", settings.Host), err).
			WithRemediation("Check the host, user and credentials.")
	}

	root := path.Join(settings.BasePath, rootName)
	display := fmt.Sprintf("%s:%s", settings.Host, root)
	return prepareTree(ctx, remote, root, display, nil)
}

// sftpFS adapts an sftp.Client to treeFS
type sftpFS struct {
	ssh    *ssh.Client
	client *sftp.Client
}

func dialSFTP(ctx context.Context, s SFTPSettings) (treeFS, error) {
	hostKeyCallback, err := hostKeyCallback(s.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	auth, err := sshAuth(s)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            s.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         sshDialTimeout,
	}

	addr := net.JoinHostPort(s.Host, s.Port)
	d := net.Dialer{Timeout: sshDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshClient,
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	if err := client.MkdirAll(s.BasePath); err != nil {
		client.Close()
		sshClient.Close()
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &sftpFS{ssh: sshClient, client: client}, nil
}

func sshAuth(s SFTPSettings) ([]ssh.AuthMethod, error) {
	if s.KeyPath != "" {
		keyData, err := os.ReadFile(expandHome(s.KeyPath))
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(s.Password)}, nil
}

// hostKeyCallback verifies against known_hosts when one is configured
func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(expandHome(knownHostsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read known_hosts: %w", err)
	}
	return cb, nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func (s *sftpFS) Mkdir(_ context.Context, name string) error {
	return s.client.Mkdir(name)
}

func (s *sftpFS) Create(_ context.Context, name string, perm fs.FileMode) (io.WriteCloser, error) {
	f, err := s.client.Create(name)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (s *sftpFS) Chtimes(_ context.Context, name string, mtime time.Time) error {
	return s.client.Chtimes(name, mtime, mtime)
}

func (s *sftpFS) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return s.client.Stat(name)
}

func (s *sftpFS) Close() error {
	s.client.Close()
	return s.ssh.Close()
}
