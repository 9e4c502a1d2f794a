package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"multidest-backup/internal/config"
	"multidest-backup/internal/destination"
	"multidest-backup/internal/display"
	apperrors "multidest-backup/internal/errors"
	"multidest-backup/internal/logging"
	"multidest-backup/internal/transfer"
)

var (
	runDestination destinationFlags
	runProfile     string
	runSaveAs      string
)

// newRegistry builds the adapter registry; tests replace it with fakes
var newRegistry = destination.NewRegistry

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run backups and inspect destinations",
}

// backupRunCmd copies the sources to a destination
var backupRunCmd = &cobra.Command{
	Use:   "run [sources...]",
	Short: "Copy folders into a new timestamped backup folder",
	Long: `Copy every source folder into a new backup_YYYYMMDD_HHMMSS folder on the
destination. Each source becomes a top-level folder named after its last path
element. Files that fail to copy are reported and skipped.

Credentials stored with "credentials set" are merged in; flags win.
Press Ctrl+C to stop after the current file.

Examples:
  # USB drive
  multidest-backup backup run ~/Documents --dest local --path /media/usb

  # NAS share
  multidest-backup backup run ~/Documents --dest nas --server 10.0.0.2 --share data --user me

  # Amazon S3 using stored keys
  multidest-backup backup run ~/Documents --dest s3 --set bucket=my-backups --set region=eu-west-1

  # Stored profile, overriding its sources
  multidest-backup backup run --profile nightly ~/Desktop`,
	RunE: runBackupRun,
}

// backupDestinationsCmd lists the registered destination kinds
var backupDestinationsCmd = &cobra.Command{
	Use:   "destinations",
	Short: "List supported destinations and their settings",
	RunE:  runBackupDestinations,
}

var destinationsFormat string

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupDestinationsCmd)

	runDestination.register(backupRunCmd)
	backupRunCmd.Flags().StringVarP(&runProfile, "profile", "p", "", "run a stored profile")
	backupRunCmd.Flags().StringVar(&runSaveAs, "save-as", "", "store this run as a profile after it finishes")

	backupDestinationsCmd.Flags().StringVarP(&destinationsFormat, "output", "o", "table", "output format (table, json, yaml)")
}

func runBackupRun(cmd *cobra.Command, args []string) error {
	opts, err := cliOptions()
	if err != nil {
		return err
	}
	logger, err := newLogger(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	store := newStore()

	sources := args
	profileDest := ""
	profileCfg := map[string]string{}
	if runProfile != "" {
		profile, err := store.LoadProfile(runProfile)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			sources = profile.Sources
		}
		profileDest = profile.Destination
		for k, v := range profile.Config {
			profileCfg[k] = v
		}
	}

	kind := runDestination.kind(profileDest)
	if kind == "" {
		return fmt.Errorf("no destination given, use --dest or --profile")
	}
	if len(sources) == 0 {
		return fmt.Errorf("no source folders given")
	}

	flagCfg, err := runDestination.config(kind)
	if err != nil {
		return err
	}
	for k, v := range flagCfg {
		profileCfg[k] = v
	}

	cfg, err := store.DestinationConfig(kind, profileCfg)
	if err != nil {
		return err
	}
	if err := promptMissingPassword(kind, cfg); err != nil {
		return err
	}

	req := transfer.Request{Sources: sources, Destination: kind, Config: cfg}
	reporter := newReporter(cmd, opts)

	result, err := executeBackup(cmd.Context(), logger, transfer.NewManager(newRegistry(), logger), req, reporter)
	if err != nil {
		return err
	}

	if runSaveAs != "" {
		profile := config.Profile{
			Sources:     sources,
			Destination: string(kind),
			Config:      withoutSecrets(profileCfg),
		}
		if err := store.SaveProfile(runSaveAs, profile); err != nil {
			return apperrors.WrapError(err, "backup finished but the profile could not be saved")
		}
		reporter.Log(fmt.Sprintf("Saved profile %q", runSaveAs))
	}

	return resultError(result)
}

// executeBackup runs req on manager. SIGINT and SIGTERM stop the run after
// the current file.
func executeBackup(ctx context.Context, logger *logging.Logger, manager *transfer.Manager, req transfer.Request, reporter *display.ConsoleReporter) (*transfer.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown := apperrors.NewGracefulShutdownHandler()
	shutdown.RegisterShutdownFunc(func() error {
		reporter.Log("Stopping after the current file...")
		manager.Stop()
		return nil
	})
	shutdown.Start()
	defer shutdown.Stop()

	logger.WithFields(map[string]interface{}{
		"destination": req.Destination,
		"sources":     len(req.Sources),
		"config":      req.Config.Redacted(),
	}).Debug("Starting backup")

	result, err := manager.Run(ctx, req, reporter.Sinks())
	reporter.Summary(result)
	return result, err
}

// resultError turns a finished run into the command's exit status. A stopped
// run is not an error; per-file failures are.
func resultError(result *transfer.Result) error {
	if result == nil || result.Outcome == transfer.OutcomeStopped {
		return nil
	}
	if result.Failed > 0 {
		return apperrors.NewAppError(apperrors.ErrorTypeDestination,
			fmt.Sprintf("%d of %d files failed", result.Failed, result.Processed), nil).
			WithUserMessage(fmt.Sprintf("%d of %d files could not be backed up, see the log above", result.Failed, result.Processed))
	}
	return nil
}

func runBackupDestinations(cmd *cobra.Command, args []string) error {
	format, err := display.ParseOutputFormat(destinationsFormat)
	if err != nil {
		return err
	}

	registry := newRegistry()
	rows := make([][]string, 0)
	for _, kind := range registry.Kinds() {
		keys := append([]string(nil), destination.ConfigKeys[kind]...)
		sort.Strings(keys)
		rows = append(rows, []string{string(kind), strings.Join(keys, ", ")})
	}

	return display.NewOutputWriter(format, cmd.OutOrStdout()).
		WriteTable([]string{"destination", "settings"}, rows)
}
