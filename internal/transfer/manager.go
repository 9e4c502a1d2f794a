package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"multidest-backup/internal/logging"

	"github.com/google/uuid"
)

// errStopped unwinds the walk when a stop has been requested
var errStopped = errors.New("backup stopped")

// Manager runs backups against the adapters of a registry. One Manager runs
// at most one backup at a time.
type Manager struct {
	registry *Registry
	logger   *logging.Logger
	now      func() time.Time

	running       atomic.Bool
	stopRequested atomic.Bool
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock used to name backup roots
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. A nil logger discards structured logs.
func NewManager(registry *Registry, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &Manager{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stop asks the active run to finish at its next checkpoint. It is safe to
// call from any goroutine; the file currently in flight is allowed to complete.
func (m *Manager) Stop() {
	m.stopRequested.Store(true)
}

// Running reports whether a run is active
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Run copies every source to the requested destination under a fresh
// backup_<timestamp> root. A stopped run returns OutcomeStopped and a nil error.
func (m *Manager) Run(ctx context.Context, req Request, sinks Sinks) (*Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer m.running.Store(false)

	// A stop requested before this run must not leak into it.
	m.stopRequested.Store(false)

	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid backup request", err)
	}

	adapter, err := m.registry.Lookup(req.Destination)
	if err != nil {
		sinks.log(fmt.Sprintf("Error: %v", err))
		return nil, err
	}

	started := m.now()
	begin := time.Now()
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	entry := m.logger.WithContext(ctx).WithField("destination", string(req.Destination))

	finish := m.logger.LogOperationStart("backup_run", map[string]interface{}{
		"run_id":      runID,
		"destination": string(req.Destination),
		"sources":     len(req.Sources),
	})

	total := countFiles(req.Sources, func(p string, err error) {
		entry.WithField("path", p).Debugf("pre-scan skipped: %v", err)
	})

	rootName := RootName(started)
	prepStart := time.Now()
	handle, err := adapter.Prepare(ctx, req.Config, rootName)
	m.logger.LogDestinationConnection(string(req.Destination), rootName, time.Since(prepStart), err)
	if err != nil {
		te := asDestinationUnavailable(req.Destination, err)
		sinks.log(fmt.Sprintf("Error: %s", te.Message))
		if te.Remediation != "" {
			sinks.log(te.Remediation)
		}
		finish(te)
		return nil, te
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			entry.Warnf("failed to release destination: %v", cerr)
		}
	}()

	sinks.log(fmt.Sprintf("Creating backup in: %s", handle.Root()))

	s := newSession(runID, total, adapter.ProgressEvery(), sinks)
	r := &run{
		ctx:     ctx,
		manager: m,
		handle:  handle,
		session: s,
		logger:  m.logger,
	}

	// copySource only fails with errStopped
	stopped := false
	for _, src := range req.Sources {
		if err := r.copySource(src); err != nil {
			stopped = true
			break
		}
	}

	result := &Result{
		RunID:       runID,
		Outcome:     OutcomeCompleted,
		Destination: req.Destination,
		Root:        handle.Root(),
		Total:       s.total,
		Processed:   s.processed,
		Failed:      s.failed,
		StartedAt:   started,
		Duration:    time.Since(begin),
	}

	if stopped {
		result.Outcome = OutcomeStopped
		sinks.log("Backup stopped by user")
	} else {
		s.complete()
		sinks.log(fmt.Sprintf("Backup completed: %d files backed up, %d failed", result.Succeeded(), result.Failed))
	}

	m.logger.LogRunSummary(runID, string(result.Outcome), result.Processed, result.Failed, result.Total, result.Duration)
	finish(nil)
	return result, nil
}

func asDestinationUnavailable(kind DestinationKind, err error) *TransferError {
	var te *TransferError
	if errors.As(err, &te) && te.Type == ErrorTypeDestinationUnavailable {
		return te
	}
	wrapped := NewDestinationUnavailableError(fmt.Sprintf("cannot prepare %s destination", kind), err)
	if errors.As(err, &te) && te.Remediation != "" {
		wrapped.Remediation = te.Remediation
	}
	return wrapped
}

// run is the per-invocation walker
type run struct {
	ctx     context.Context
	manager *Manager
	handle  Handle
	session *session
	logger  *logging.Logger
}

func (r *run) shouldStop() bool {
	return r.manager.stopRequested.Load() || r.ctx.Err() != nil
}

func (r *run) copySource(src string) error {
	if r.shouldStop() {
		return errStopped
	}

	info, err := os.Stat(src)
	if err != nil {
		r.session.sinks.log(fmt.Sprintf("Skipping %s: %v", src, err))
		return nil
	}

	name := filepath.Base(filepath.Clean(src))

	switch {
	case info.Mode().IsRegular():
		r.writeFile(src, name)
		r.session.emit("")
		return nil
	case info.IsDir():
		return r.copyDir(src, name)
	default:
		r.session.sinks.log(fmt.Sprintf("Skipping %s: not a regular file or directory", src))
		return nil
	}
}

// copyDir mirrors dir at rel: the directory itself, then its files, then each
// subdirectory depth first.
func (r *run) copyDir(dir, rel string) error {
	if r.shouldStop() {
		return errStopped
	}

	r.ensureDirectory(rel)

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.session.sinks.log(fmt.Sprintf("Warning reading directory %s: %v", dir, err))
		return nil
	}

	files, dirs, other := splitEntries(entries)
	for _, e := range other {
		r.logger.WithContext(r.ctx).WithField("path", filepath.Join(dir, e.Name())).Debug("skipping non-regular entry")
	}

	for _, f := range files {
		if r.shouldStop() {
			return errStopped
		}
		r.writeFile(filepath.Join(dir, f.Name()), path.Join(rel, f.Name()))
		r.session.tick()
	}

	for _, d := range dirs {
		if err := r.copyDir(filepath.Join(dir, d.Name()), path.Join(rel, d.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) ensureDirectory(rel string) {
	err := r.handle.EnsureDirectory(r.ctx, rel)
	if err == nil || errors.Is(err, ErrAlreadyExists) {
		return
	}
	r.session.sinks.log(fmt.Sprintf("Warning creating directory %s: %v", rel, reason(err)))
}

func (r *run) writeFile(localPath, rel string) {
	start := time.Now()
	err := r.handle.WriteFile(r.ctx, localPath, rel)
	r.logger.LogFileTransfer(localPath, rel, time.Since(start), err)
	r.session.fileDone(localPath, err)
}
