package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"multidest-backup/internal/config"
	"multidest-backup/internal/display"
	apperrors "multidest-backup/internal/errors"
	"multidest-backup/internal/scheduler"
	"multidest-backup/internal/transfer"
)

var (
	scheduleProfile   string
	scheduleFrequency string
	scheduleAt        string
	scheduleDisable   bool
)

// scheduleCmd groups the periodic backup commands
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run a stored profile periodically",
	Long: `Configure and run the periodic backup. One profile can be scheduled daily,
weekly (Mondays) or monthly (first day of the month) at a local time.

Examples:
  multidest-backup schedule set --profile nightly --frequency daily --at 02:30
  multidest-backup schedule show
  multidest-backup schedule run
  multidest-backup schedule set --disable`,
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Enable, change or disable the schedule",
	Args:  cobra.NoArgs,
	RunE:  runScheduleSet,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the schedule and the next run time",
	Args:  cobra.NoArgs,
	RunE:  runScheduleShow,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Stay in the foreground and run the scheduled profile when due",
	Long: `Stay in the foreground and run the scheduled profile when it is due. A run
that is still going when the next one is due is skipped. Ctrl+C stops the
current run after the current file and exits.`,
	Args: cobra.NoArgs,
	RunE: runScheduleRun,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleSetCmd, scheduleShowCmd, scheduleRunCmd)

	scheduleSetCmd.Flags().StringVarP(&scheduleProfile, "profile", "p", "", "profile to run")
	scheduleSetCmd.Flags().StringVarP(&scheduleFrequency, "frequency", "f", string(config.FrequencyDaily), "daily, weekly or monthly")
	scheduleSetCmd.Flags().StringVar(&scheduleAt, "at", "02:00", "local time as HH:MM")
	scheduleSetCmd.Flags().BoolVar(&scheduleDisable, "disable", false, "disable the schedule")
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	store := newStore()
	out := cmd.OutOrStdout()

	if scheduleDisable {
		current, err := store.Schedule()
		if err != nil {
			return err
		}
		current.Enabled = false
		if err := store.SaveSchedule(current); err != nil {
			return err
		}
		fmt.Fprintln(out, "Schedule disabled")
		return nil
	}

	if scheduleProfile == "" {
		return errors.New("--profile is required")
	}
	hour, minute, err := config.ParseClock(scheduleAt)
	if err != nil {
		return err
	}

	schedule := config.Schedule{
		Enabled:   true,
		Frequency: config.Frequency(scheduleFrequency),
		Hour:      hour,
		Minute:    minute,
		Profile:   scheduleProfile,
	}
	if err := store.SaveSchedule(schedule); err != nil {
		return err
	}

	fmt.Fprintf(out, "Scheduled %s\n", schedule)
	if next, err := scheduler.NextRun(schedule, time.Now()); err == nil {
		fmt.Fprintf(out, "Next run: %s\n", next.Format("Mon 2006-01-02 15:04"))
	}
	return nil
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	schedule, err := newStore().Schedule()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Schedule: %s\n", schedule)
	if !schedule.Enabled {
		return nil
	}
	next, err := scheduler.NextRun(schedule, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Next run: %s\n", next.Format("Mon 2006-01-02 15:04"))
	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
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
	schedule, err := store.Schedule()
	if err != nil {
		return err
	}
	if !schedule.Enabled {
		return errors.New(`no schedule is enabled, use "schedule set" first`)
	}

	reporter := newReporter(cmd, opts)
	manager := transfer.NewManager(newRegistry(), logger)
	sched := scheduler.New(scheduledJob(store, manager, reporter), logger)
	if err := sched.Apply(schedule); err != nil {
		return err
	}
	sched.Start()

	if next, ok := sched.Next(); ok {
		reporter.Log(fmt.Sprintf("Waiting for the next backup at %s (%s)", next.Format("Mon 2006-01-02 15:04"), schedule))
	}

	shutdown := apperrors.NewGracefulShutdownHandler()
	shutdown.RegisterShutdownFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return sched.Stop(ctx)
	})
	// registered last so it runs first
	shutdown.RegisterShutdownFunc(func() error {
		manager.Stop()
		return nil
	})
	shutdown.Start()
	defer shutdown.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-shutdown.Done():
	case <-ctx.Done():
		shutdown.Trigger()
		<-shutdown.Done()
	}
	reporter.Log("Scheduler stopped")
	return nil
}

// scheduledJob loads the profile on every run so edits apply without a restart
func scheduledJob(store *config.Store, manager *transfer.Manager, reporter *display.ConsoleReporter) scheduler.Job {
	return func(ctx context.Context, name string) error {
		profile, err := store.LoadProfile(name)
		if err != nil {
			return err
		}
		kind := transfer.ParseDestinationKind(profile.Destination)
		cfg, err := store.DestinationConfig(kind, profile.Config)
		if err != nil {
			return err
		}

		result, err := manager.Run(ctx, profile.Request(cfg), reporter.Sinks())
		reporter.Summary(result)
		if err != nil {
			return err
		}
		return resultError(result)
	}
}
