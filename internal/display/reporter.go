package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	"multidest-backup/internal/transfer"
)

// ConsoleReporter turns transfer sink callbacks into terminal output. A
// terminal gets a live progress bar; any other writer gets one line per
// distinct update. Methods are safe for concurrent use.
type ConsoleReporter struct {
	out    io.Writer
	colors ColorSystem
	bar    *ProgressBar
	quiet  bool

	mu          sync.Mutex
	lastPercent int
	lastStatus  string
	lines       int
}

// ReporterOption configures a ConsoleReporter
type ReporterOption func(*ConsoleReporter)

// WithQuiet suppresses progress output; log lines that report failures are still shown
func WithQuiet(quiet bool) ReporterOption {
	return func(r *ConsoleReporter) {
		r.quiet = quiet
	}
}

// WithColorSystem replaces the detected color system
func WithColorSystem(cs ColorSystem) ReporterOption {
	return func(r *ConsoleReporter) {
		r.colors = cs
	}
}

// WithProgressBar forces the live bar on or off regardless of terminal detection
func WithProgressBar(enabled bool) ReporterOption {
	return func(r *ConsoleReporter) {
		if enabled {
			r.bar = NewProgressBar(r.out, r.colors)
		} else {
			r.bar = nil
		}
	}
}

// NewConsoleReporter creates a reporter writing to out
func NewConsoleReporter(out io.Writer, theme ColorTheme, opts ...ReporterOption) *ConsoleReporter {
	r := &ConsoleReporter{
		out:         out,
		colors:      NewColorSystem(out, theme),
		lastPercent: -1,
	}
	if isTerminal(out) {
		r.bar = NewProgressBar(out, r.colors)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}

// Sinks returns callbacks to hand to transfer.Manager.Run
func (r *ConsoleReporter) Sinks() transfer.Sinks {
	return transfer.Sinks{
		OnProgress: r.Progress,
		OnLog:      r.Log,
	}
}

// Progress reports percent complete with the current status
func (r *ConsoleReporter) Progress(percent int, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.quiet {
		return
	}
	if r.bar != nil {
		r.bar.Update(percent, status)
		return
	}
	if percent == r.lastPercent && status == r.lastStatus {
		return
	}
	r.lastPercent = percent
	r.lastStatus = status
	r.println(fmt.Sprintf("[%3d%%] %s", percent, status))
}

// Log prints a log line, colored by what it reports
func (r *ConsoleReporter) Log(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	severity := classify(message)
	if r.quiet && severity != severityError && severity != severitySummary {
		return
	}

	theme := r.colors.Theme()
	switch severity {
	case severityError:
		message = r.colors.Colorize(message, theme.Error)
	case severityWarning:
		message = r.colors.Colorize(message, theme.Warning)
	case severitySummary:
		message = r.colors.Colorize(message, theme.Success)
	case severityProgress:
		message = r.colors.Colorize(message, theme.Muted)
	}

	if r.bar != nil {
		r.bar.Clear()
	}
	r.println(message)
}

// Summary prints the final state of a run and readies the reporter for the next one
func (r *ConsoleReporter) Summary(result *transfer.Result) {
	if result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastPercent = -1
	r.lastStatus = ""

	if r.bar != nil {
		r.bar.Finish()
	}

	theme := r.colors.Theme()
	status := r.colors.Colorize("completed", theme.Success)
	if result.Outcome == transfer.OutcomeStopped {
		status = r.colors.Colorize("stopped", theme.Warning)
	}
	if result.Failed > 0 {
		status += r.colors.Sprintf(theme.Error, " with %d failed", result.Failed)
	}

	r.println(fmt.Sprintf("Backup %s: %d/%d files in %s (%s)",
		status, result.Succeeded(), result.Total, result.Root,
		result.Duration.Round(time.Millisecond)))
}

// Lines returns how many lines have been written
func (r *ConsoleReporter) Lines() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines
}

// println writes one line; callers hold mu
func (r *ConsoleReporter) println(line string) {
	fmt.Fprintln(r.out, line)
	r.lines++
}

type severity int

const (
	severityInfo severity = iota
	severityProgress
	severityWarning
	severityError
	severitySummary
)

func classify(message string) severity {
	switch {
	case strings.HasPrefix(message, "Error"):
		return severityError
	case strings.HasPrefix(message, "Warning"), strings.HasPrefix(message, "Skipping"):
		return severityWarning
	case strings.HasPrefix(message, "Backup completed"), strings.HasPrefix(message, "Backup stopped"):
		return severitySummary
	case strings.HasPrefix(message, "Progress:"):
		return severityProgress
	default:
		return severityInfo
	}
}
