package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"multidest-backup/internal/transfer"
)

// Settings is the persisted state of the tool: stored credentials, named
// backup profiles and the periodic schedule.
type Settings struct {
	Credentials Credentials        `mapstructure:"credentials" yaml:"credentials"`
	Profiles    map[string]Profile `mapstructure:"profiles" yaml:"profiles,omitempty"`
	Schedule    Schedule           `mapstructure:"schedule" yaml:"schedule"`
	CLI         CLIOptions         `mapstructure:"cli" yaml:"cli,omitempty"`
}

// CLIOptions are defaults for the global command line flags
type CLIOptions struct {
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
	Quiet     bool   `mapstructure:"quiet" yaml:"quiet,omitempty"`
	LogFile   string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format,omitempty"`
	Theme     string `mapstructure:"theme" yaml:"theme,omitempty"`
}

// Credentials holds secrets that are shared by every profile of a kind
type Credentials struct {
	GDrive  GDriveCredentials  `mapstructure:"gdrive" yaml:"gdrive,omitempty"`
	Dropbox DropboxCredentials `mapstructure:"dropbox" yaml:"dropbox,omitempty"`
	NAS     NASCredentials     `mapstructure:"nas" yaml:"nas,omitempty"`
	S3      S3Credentials      `mapstructure:"s3" yaml:"s3,omitempty"`
	Azure   AzureCredentials   `mapstructure:"azure" yaml:"azure,omitempty"`
	GCS     GCSCredentials     `mapstructure:"gcs" yaml:"gcs,omitempty"`
	SFTP    SFTPCredentials    `mapstructure:"sftp" yaml:"sftp,omitempty"`
}

// GDriveCredentials points at a service account or OAuth client file
type GDriveCredentials struct {
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// DropboxCredentials holds an access token
type DropboxCredentials struct {
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// NASCredentials for SMB shares
type NASCredentials struct {
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Domain   string `mapstructure:"domain" yaml:"domain,omitempty"`
}

// S3Credentials for Amazon S3 and compatible stores
type S3Credentials struct {
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
}

// AzureCredentials for Azure Blob Storage
type AzureCredentials struct {
	AccountName string `mapstructure:"account_name" yaml:"account_name,omitempty"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key,omitempty"`
}

// GCSCredentials for Google Cloud Storage
type GCSCredentials struct {
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

// SFTPCredentials for SSH servers
type SFTPCredentials struct {
	Password   string `mapstructure:"password" yaml:"password,omitempty"`
	KeyPath    string `mapstructure:"key_path" yaml:"key_path,omitempty"`
	KnownHosts string `mapstructure:"known_hosts" yaml:"known_hosts,omitempty"`
}

// Profile is a saved backup request
type Profile struct {
	Sources     []string          `mapstructure:"sources" yaml:"sources"`
	Destination string            `mapstructure:"destination" yaml:"destination"`
	Config      map[string]string `mapstructure:"config" yaml:"config,omitempty"`
}

// Frequency of a scheduled backup
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule runs a stored profile periodically at Hour:Minute local time.
// Weekly runs on Mondays, monthly runs on the first day of the month.
type Schedule struct {
	Enabled   bool      `mapstructure:"enabled" yaml:"enabled"`
	Frequency Frequency `mapstructure:"frequency" yaml:"frequency,omitempty"`
	Hour      int       `mapstructure:"hour" yaml:"hour"`
	Minute    int       `mapstructure:"minute" yaml:"minute"`
	Profile   string    `mapstructure:"profile" yaml:"profile,omitempty"`
}

// Validate checks the schedule fields
func (s *Schedule) Validate() error {
	var errs transfer.ValidationErrors

	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	case "":
		if s.Enabled {
			errs.Add("frequency", "frequency is required when the schedule is enabled", nil)
		}
	default:
		errs.Add("frequency", "frequency must be daily, weekly or monthly", s.Frequency)
	}

	if s.Hour < 0 || s.Hour > 23 {
		errs.Add("hour", "hour must be between 0 and 23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		errs.Add("minute", "minute must be between 0 and 59", s.Minute)
	}
	if s.Enabled && strings.TrimSpace(s.Profile) == "" {
		errs.Add("profile", "a profile is required when the schedule is enabled", nil)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// String renders the schedule for display
func (s Schedule) String() string {
	if !s.Enabled {
		return "disabled"
	}
	when := fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
	switch s.Frequency {
	case FrequencyWeekly:
		return fmt.Sprintf("weekly on Monday at %s, profile %q", when, s.Profile)
	case FrequencyMonthly:
		return fmt.Sprintf("monthly on day 1 at %s, profile %q", when, s.Profile)
	default:
		return fmt.Sprintf("daily at %s, profile %q", when, s.Profile)
	}
}

// ParseClock parses "HH:MM"
func ParseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return hour, minute, nil
}

// Validate checks the profile fields
func (p *Profile) Validate() error {
	var errs transfer.ValidationErrors
	if len(p.Sources) == 0 {
		errs.Add("sources", "at least one source path is required", nil)
	}
	if strings.TrimSpace(p.Destination) == "" {
		errs.Add("destination", "destination is required", nil)
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Request turns the profile into a backup request
func (p *Profile) Request(cfg transfer.DestinationConfig) transfer.Request {
	return transfer.Request{
		Sources:     append([]string(nil), p.Sources...),
		Destination: transfer.ParseDestinationKind(p.Destination),
		Config:      cfg,
	}
}

// ErrProfileNotFound is returned for unknown profile names
var ErrProfileNotFound = errors.New("profile not found")

// ProfileNames returns the stored profile names in sorted order
func (s *Settings) ProfileNames() []string {
	names := make([]string, 0, len(s.Profiles))
	for name := range s.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromEnvironment overrides stored secrets with environment variables
func (s *Settings) LoadFromEnvironment() {
	s.Credentials.LoadFromEnvironment()
}

// LoadFromEnvironment overrides credentials from environment variables
func (c *Credentials) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_GDRIVE_CREDENTIALS"); val != "" {
		c.GDrive.CredentialsPath = val
	}
	if val := os.Getenv("BACKUP_DROPBOX_TOKEN"); val != "" {
		c.Dropbox.Token = val
	}
	if val := os.Getenv("BACKUP_NAS_PASSWORD"); val != "" {
		c.NAS.Password = val
	}
	if val := os.Getenv("BACKUP_S3_ACCESS_KEY"); val != "" {
		c.S3.AccessKey = val
	}
	if val := os.Getenv("BACKUP_S3_SECRET_KEY"); val != "" {
		c.S3.SecretKey = val
	}
	if val := os.Getenv("BACKUP_AZURE_ACCOUNT_KEY"); val != "" {
		c.Azure.AccountKey = val
	}
	if val := os.Getenv("BACKUP_GCS_CREDENTIALS"); val != "" {
		c.GCS.CredentialsPath = val
	}
	if val := os.Getenv("BACKUP_SFTP_PASSWORD"); val != "" {
		c.SFTP.Password = val
	}
}

// Values returns the stored credentials of kind as destination config keys
func (c *Credentials) Values(kind transfer.DestinationKind) transfer.DestinationConfig {
	values := transfer.DestinationConfig{}
	set := func(key, val string) {
		if val != "" {
			values[key] = val
		}
	}

	switch kind {
	case transfer.DestinationGDrive:
		set("credentials_path", c.GDrive.CredentialsPath)
	case transfer.DestinationDropbox:
		set("token", c.Dropbox.Token)
	case transfer.DestinationNAS:
		set("username", c.NAS.Username)
		set("password", c.NAS.Password)
		set("domain", c.NAS.Domain)
	case transfer.DestinationS3:
		set("access_key", c.S3.AccessKey)
		set("secret_key", c.S3.SecretKey)
	case transfer.DestinationAzure:
		set("account_name", c.Azure.AccountName)
		set("account_key", c.Azure.AccountKey)
	case transfer.DestinationGCS:
		set("credentials_path", c.GCS.CredentialsPath)
	case transfer.DestinationSFTP:
		set("password", c.SFTP.Password)
		set("key_path", c.SFTP.KeyPath)
		set("known_hosts", c.SFTP.KnownHosts)
	}
	return values
}

// Set stores one credential value. Unknown keys are rejected.
func (c *Credentials) Set(kind transfer.DestinationKind, key, val string) error {
	var target *string

	switch kind {
	case transfer.DestinationGDrive:
		if key == "credentials_path" {
			target = &c.GDrive.CredentialsPath
		}
	case transfer.DestinationDropbox:
		if key == "token" {
			target = &c.Dropbox.Token
		}
	case transfer.DestinationNAS:
		switch key {
		case "username":
			target = &c.NAS.Username
		case "password":
			target = &c.NAS.Password
		case "domain":
			target = &c.NAS.Domain
		}
	case transfer.DestinationS3:
		switch key {
		case "access_key":
			target = &c.S3.AccessKey
		case "secret_key":
			target = &c.S3.SecretKey
		}
	case transfer.DestinationAzure:
		switch key {
		case "account_name":
			target = &c.Azure.AccountName
		case "account_key":
			target = &c.Azure.AccountKey
		}
	case transfer.DestinationGCS:
		if key == "credentials_path" {
			target = &c.GCS.CredentialsPath
		}
	case transfer.DestinationSFTP:
		switch key {
		case "password":
			target = &c.SFTP.Password
		case "key_path":
			target = &c.SFTP.KeyPath
		case "known_hosts":
			target = &c.SFTP.KnownHosts
		}
	}

	if target == nil {
		return fmt.Errorf("%s has no stored credential %q", kind, key)
	}
	*target = val
	return nil
}
