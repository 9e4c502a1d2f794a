// Package scheduler runs a stored backup profile periodically.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"multidest-backup/internal/config"
	"multidest-backup/internal/logging"
)

// Job runs one scheduled backup of the named profile. ctx is cancelled when
// the scheduler stops.
type Job func(ctx context.Context, profile string) error

// Scheduler wraps a cron instance holding at most one backup entry
type Scheduler struct {
	cron   *cron.Cron
	job    Job
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entry    cron.EntryID
	schedule config.Schedule
}

// Option configures a Scheduler
type Option func(*options)

type options struct {
	location *time.Location
}

// WithLocation evaluates schedules in loc instead of time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.location = loc
	}
}

// New creates a stopped scheduler. A run that is still going when the next
// one is due is skipped, and a panicking job is recovered and logged.
func New(job Job, logger *logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := &options{location: time.Local}
	for _, opt := range opts {
		opt(o)
	}

	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(o.location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:    job,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Spec converts a schedule into a standard five-field cron expression
func Spec(s config.Schedule) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	switch s.Frequency {
	case config.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour), nil
	case config.FrequencyWeekly:
		return fmt.Sprintf("%d %d * * 1", s.Minute, s.Hour), nil
	case config.FrequencyMonthly:
		return fmt.Sprintf("%d %d 1 * *", s.Minute, s.Hour), nil
	default:
		return "", fmt.Errorf("unsupported frequency %q", s.Frequency)
	}
}

// NextRun returns the first activation of s strictly after from
func NextRun(s config.Schedule, from time.Time) (time.Time, error) {
	spec, err := Spec(s)
	if err != nil {
		return time.Time{}, err
	}
	parsed, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.Next(from), nil
}

// Apply replaces the active entry with s. A disabled schedule removes it.
func (s *Scheduler) Apply(schedule config.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.schedule = schedule

	if !schedule.Enabled {
		s.logger.Info("Backup schedule disabled")
		return nil
	}

	spec, err := Spec(schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	profile := schedule.Profile
	id, err := s.cron.AddFunc(spec, func() {
		s.run(profile)
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", spec, err)
	}
	s.entry = id

	s.logger.WithFields(map[string]interface{}{
		"spec":    spec,
		"profile": profile,
	}).Infof("Backup scheduled %s", schedule)
	return nil
}

func (s *Scheduler) run(profile string) {
	finish := s.logger.LogOperationStart("scheduled_backup", map[string]interface{}{
		"profile": profile,
	})
	err := s.job(s.ctx, profile)
	if err != nil {
		s.logger.WithField("profile", profile).Errorf("Scheduled backup failed: %v", err)
	}
	finish(err)
}

// Start begins firing entries in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs, cancels the context handed to a running job and
// waits for it to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation of the active entry
func (s *Scheduler) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == 0 {
		return time.Time{}, false
	}
	entry := s.cron.Entry(s.entry)
	if entry.Next.IsZero() {
		// not started yet
		next, err := NextRun(s.schedule, time.Now())
		if err != nil {
			return time.Time{}, false
		}
		return next, true
	}
	return entry.Next, true
}

// cronLogger routes cron's internal logging through logrus
type cronLogger struct {
	logger *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
