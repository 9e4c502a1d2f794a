package transfer

import (
	"sort"
	"strings"
	"time"
)

// DestinationKind selects the backend a run writes to
type DestinationKind string

const (
	DestinationLocal   DestinationKind = "local"
	DestinationNAS     DestinationKind = "nas"
	DestinationGDrive  DestinationKind = "gdrive"
	DestinationDropbox DestinationKind = "dropbox"
	DestinationS3      DestinationKind = "s3"
	DestinationAzure   DestinationKind = "azure"
	DestinationGCS     DestinationKind = "gcs"
	DestinationSFTP    DestinationKind = "sftp"
)

// ParseDestinationKind normalizes a user supplied destination selector.
// Unknown selectors are returned as-is so that the registry can reject them.
func ParseDestinationKind(s string) DestinationKind {
	kind := DestinationKind(strings.ToLower(strings.TrimSpace(s)))
	switch kind {
	case "smb":
		return DestinationNAS
	case "google-drive", "googledrive", "drive":
		return DestinationGDrive
	}
	return kind
}

// DestinationConfig is the destination-specific configuration record.
// Keys are backend specific (see each adapter's Validate).
type DestinationConfig map[string]string

// Get returns the trimmed value for key
func (c DestinationConfig) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// GetDefault returns the value for key or def when the key is empty
func (c DestinationConfig) GetDefault(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// Require returns a ValidationErrors entry for every key that is missing
func (c DestinationConfig) Require(keys ...string) error {
	var errs ValidationErrors
	for _, key := range keys {
		if c.Get(key) == "" {
			errs.Add(key, "is required", nil)
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Redacted returns a copy safe for logging
func (c DestinationConfig) Redacted() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		switch k {
		case "password", "token", "secret_key", "access_key", "account_key":
			if v != "" {
				v = "***"
			}
		}
		out[k] = v
	}
	return out
}

// Keys returns the config keys in sorted order
func (c DestinationConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Request is one backup invocation. It must not be mutated while a run is active.
type Request struct {
	Sources     []string
	Destination DestinationKind
	Config      DestinationConfig
}

// Validate checks the request shape before any I/O happens
func (r *Request) Validate() error {
	var errs ValidationErrors
	if len(r.Sources) == 0 {
		errs.Add("sources", "at least one source path is required", nil)
	}
	for i, src := range r.Sources {
		if strings.TrimSpace(src) == "" {
			errs.Add("sources", "source path cannot be empty", i)
		}
	}
	if r.Destination == "" {
		errs.Add("destination", "destination kind is required", nil)
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ProgressFunc receives percentage updates (0..100) with an optional status message
type ProgressFunc func(percent int, status string)

// LogFunc receives human readable activity log lines
type LogFunc func(message string)

// Sinks are the caller-owned callbacks. They are invoked from the goroutine running
// the transfer; marshaling onto another execution context is the caller's job.
type Sinks struct {
	OnProgress ProgressFunc
	OnLog      LogFunc
}

func (s Sinks) progress(percent int, status string) {
	if s.OnProgress != nil {
		s.OnProgress(percent, status)
	}
}

func (s Sinks) log(message string) {
	if s.OnLog != nil {
		s.OnLog(message)
	}
}

// Outcome distinguishes a completed run from a run stopped on request
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
)

// Result summarizes a finished (completed or stopped) run
type Result struct {
	RunID       string          `json:"run_id"`
	Outcome     Outcome         `json:"outcome"`
	Destination DestinationKind `json:"destination"`
	Root        string          `json:"root"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	Failed      int             `json:"failed"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// Succeeded reports the number of files that were written without error
func (r *Result) Succeeded() int {
	return r.Processed - r.Failed
}

// RootTimeFormat is the sortable timestamp embedded in every backup root name
const RootTimeFormat = "20060102_150405"

// RootName returns the per-run backup root name for the given wall-clock time
func RootName(t time.Time) string {
	return "backup_" + t.Format(RootTimeFormat)
}
