package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"multidest-backup/internal/transfer"
)

// destinationFlags are the per-run destination options shared by
// "backup run" and "profile save"
type destinationFlags struct {
	dest        string
	path        string
	server      string
	share       string
	user        string
	password    string
	domain      string
	port        string
	folder      string
	token       string
	credentials string
	options     []string
}

func (f *destinationFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.dest, "dest", "d", "", "destination kind (local, nas, gdrive, dropbox, s3, azure, gcs, sftp)")
	flags.StringVar(&f.path, "path", "", "local directory, or remote directory for sftp")
	flags.StringVar(&f.server, "server", "", "NAS server or SFTP host")
	flags.StringVar(&f.share, "share", "", "NAS share name")
	flags.StringVar(&f.user, "user", "", "NAS or SFTP user name")
	flags.StringVar(&f.password, "password", "", "NAS or SFTP password (prompted for when omitted)")
	flags.StringVar(&f.domain, "domain", "", "NAS domain or workgroup")
	flags.StringVar(&f.port, "port", "", "NAS or SFTP port")
	flags.StringVar(&f.folder, "folder", "", "Google Drive folder name or Dropbox folder path")
	flags.StringVar(&f.token, "token", "", "Dropbox access token")
	flags.StringVar(&f.credentials, "credentials", "", "Google Drive or GCS credentials file")
	flags.StringArrayVar(&f.options, "set", nil, "extra destination setting as key=value (repeatable)")
}

// kind returns the parsed --dest value, or fallback when the flag is empty
func (f *destinationFlags) kind(fallback string) transfer.DestinationKind {
	if strings.TrimSpace(f.dest) != "" {
		return transfer.ParseDestinationKind(f.dest)
	}
	return transfer.ParseDestinationKind(fallback)
}

// config maps the flags onto the configuration keys of kind
func (f *destinationFlags) config(kind transfer.DestinationKind) (map[string]string, error) {
	cfg := map[string]string{}
	set := func(key, val string) {
		if strings.TrimSpace(val) != "" {
			cfg[key] = val
		}
	}

	switch kind {
	case transfer.DestinationLocal:
		set("path", f.path)
	case transfer.DestinationNAS:
		set("server", f.server)
		set("share", f.share)
		set("username", f.user)
		set("password", f.password)
		set("domain", f.domain)
		set("port", f.port)
	case transfer.DestinationGDrive:
		set("credentials_path", f.credentials)
		set("folder_name", f.folder)
	case transfer.DestinationDropbox:
		set("token", f.token)
		set("folder_path", f.folder)
	case transfer.DestinationGCS:
		set("credentials_path", f.credentials)
	case transfer.DestinationSFTP:
		set("host", f.server)
		set("username", f.user)
		set("password", f.password)
		set("port", f.port)
		set("path", f.path)
	}

	for _, opt := range f.options {
		key, val, ok := strings.Cut(opt, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", opt)
		}
		cfg[key] = val
	}
	return cfg, nil
}

// secretKeys are never written into a profile; they belong in credentials
var secretKeys = map[string]bool{
	"password":    true,
	"token":       true,
	"secret_key":  true,
	"access_key":  true,
	"account_key": true,
}

func withoutSecrets(cfg map[string]string) map[string]string {
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		if !secretKeys[k] {
			out[k] = v
		}
	}
	return out
}

// passwordPrompt reads a password without echo. It is a variable so tests
// can replace it.
var passwordPrompt = func(label string) (string, bool, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false, fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), true, nil
}

// promptMissingPassword asks for the password of password-based destinations
// when none was given and stdin is a terminal
func promptMissingPassword(kind transfer.DestinationKind, cfg transfer.DestinationConfig) error {
	switch kind {
	case transfer.DestinationNAS:
	case transfer.DestinationSFTP:
		if cfg.Get("key_path") != "" {
			return nil
		}
	default:
		return nil
	}
	if cfg.Get("password") != "" {
		return nil
	}

	label := fmt.Sprintf("Password for %s", cfg.Get("username"))
	pw, ok, err := passwordPrompt(label)
	if err != nil || !ok {
		return err
	}
	cfg["password"] = pw
	return nil
}
