package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"multidest-backup/internal/config"
	"multidest-backup/internal/display"
	apperrors "multidest-backup/internal/errors"
	"multidest-backup/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "multidest-backup",
	Short: "Copy folders to local disks, NAS shares and cloud storage",
	Long: `multidest-backup copies one or more source folders into a new timestamped
backup folder on the destination of your choice: a local or USB path, an SMB/NAS
share, Google Drive, Dropbox, Amazon S3, Azure Blob Storage, Google Cloud Storage
or an SFTP server.

Backups are plain mirrors of the source tree. Progress is shown while files are
copied and Ctrl+C stops the run after the current file.

Examples:
  # Back up two folders to a USB drive
  multidest-backup backup run ~/Documents ~/Pictures --dest local --path /media/usb

  # Back up to a NAS share, prompting for the password
  multidest-backup backup run ~/Documents --dest nas --server 192.168.1.10 --share backups --user me

  # Save a profile and run it every night at 02:30
  multidest-backup profile save nightly ~/Documents --dest dropbox
  multidest-backup schedule set --profile nightly --frequency daily --at 02:30
  multidest-backup schedule run`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apperrors.FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is $HOME/"+config.DefaultFileName+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log every file and connection")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "only print errors and the final summary")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to a rotating file")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("theme", "dark", "color theme (dark, light, plain)")

	viper.BindPFlag("cli.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("cli.quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("cli.log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("cli.log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("cli.theme", rootCmd.PersistentFlags().Lookup("theme"))

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// settingsPath is the file shared by viper and config.Store
func settingsPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// initConfig reads in the settings file and ENV variables if set.
func initConfig() {
	viper.SetConfigFile(settingsPath())
	viper.SetConfigType("yaml")

	// BACKUP_CLI_LOG_FILE, BACKUP_CLI_VERBOSE, ...
	viper.SetEnvPrefix("BACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("cli.verbose") {
			fmt.Fprintln(os.Stderr, "Using settings file:", viper.ConfigFileUsed())
		}
	}
}

func newStore() *config.Store {
	return config.NewStore(settingsPath())
}

// cliOptions returns the global options after flags, environment and the
// settings file have been merged by viper
func cliOptions() (config.CLIOptions, error) {
	opts := config.CLIOptions{
		Verbose:   viper.GetBool("cli.verbose"),
		Quiet:     viper.GetBool("cli.quiet"),
		LogFile:   viper.GetString("cli.log_file"),
		LogFormat: viper.GetString("cli.log_format"),
		Theme:     viper.GetString("cli.theme"),
	}
	if opts.Verbose && opts.Quiet {
		return opts, errors.New("--verbose and --quiet flags are mutually exclusive")
	}
	switch opts.LogFormat {
	case "", "text", "json":
	default:
		return opts, fmt.Errorf("invalid log format %q, must be text or json", opts.LogFormat)
	}
	return opts, nil
}

// newLogger builds the structured logger. Console output stays readable:
// without a log file only errors (or everything with --verbose) reach stderr.
func newLogger(opts config.CLIOptions) (*logging.Logger, error) {
	cfg := logging.Config{
		Level:  logging.LogLevelQuiet,
		Output: os.Stderr,
		Format: opts.LogFormat,
	}
	if opts.Verbose {
		cfg.Level = logging.LogLevelVerbose
	}
	if opts.LogFile != "" {
		cfg.Output = io.Discard
		cfg.LogFile = opts.LogFile
		if !opts.Verbose {
			cfg.Level = logging.LogLevelNormal
		}
	}
	return logging.NewLogger(cfg)
}

func newReporter(cmd *cobra.Command, opts config.CLIOptions) *display.ConsoleReporter {
	return display.NewConsoleReporter(cmd.OutOrStdout(), display.GetThemeByName(opts.Theme),
		display.WithQuiet(opts.Quiet))
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "multidest-backup version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
		},
	}
}

// createConfigCommand prints an annotated settings file
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a sample settings file",
		Long: `Print a complete settings file template. Profiles, credentials and the
schedule are normally written by the profile, credentials and schedule commands;
this template documents every key.

Examples:
  multidest-backup config > ~/` + config.DefaultFileName,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), sampleSettings)
		},
	}
}

const sampleSettings = `# multidest-backup settings
# Keep this file private (chmod 600): it holds destination credentials.

# Defaults for the global flags
cli:
  verbose: false
  quiet: false
  log_file: ""            # rotating log file, empty disables
  log_format: text        # text or json
  theme: dark             # dark, light or plain

# Credentials shared by every profile of a destination kind
credentials:
  gdrive:
    credentials_path: /home/me/.config/backup/drive-service-account.json
  dropbox:
    token: ""             # or BACKUP_DROPBOX_TOKEN
  nas:
    username: backup
    password: ""          # or BACKUP_NAS_PASSWORD
    domain: WORKGROUP
  s3:
    access_key: ""        # or BACKUP_S3_ACCESS_KEY
    secret_key: ""        # or BACKUP_S3_SECRET_KEY
  azure:
    account_name: mystorage
    account_key: ""       # or BACKUP_AZURE_ACCOUNT_KEY
  gcs:
    credentials_path: ""  # or BACKUP_GCS_CREDENTIALS
  sftp:
    key_path: ~/.ssh/id_ed25519
    known_hosts: ~/.ssh/known_hosts

# Named backup requests
profiles:
  documents:
    sources:
      - /home/me/Documents
    destination: nas
    config:
      server: 192.168.1.10
      share: backups
  photos:
    sources:
      - /home/me/Pictures
    destination: dropbox
    config:
      folder_path: /Backups/Photos

# Periodic run of one profile: daily, weekly (Mondays) or monthly (day 1)
schedule:
  enabled: true
  frequency: daily
  hour: 2
  minute: 30
  profile: documents
`
