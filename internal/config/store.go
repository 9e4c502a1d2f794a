// Package config persists credentials, backup profiles and the schedule in a
// YAML settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"multidest-backup/internal/transfer"
)

// DefaultFileName is the settings file created in the user's home directory
const DefaultFileName = ".multidest-backup.yaml"

// DefaultPath returns $HOME/.multidest-backup.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(home, DefaultFileName)
}

// Store reads and writes the settings file. Every mutation is a
// read-modify-write of the whole file under a mutex.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the settings file location
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored settings with environment overrides applied.
// A missing file yields empty settings.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return nil, err
	}
	settings.LoadFromEnvironment()
	return settings, nil
}

// Save replaces the settings file
func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(settings)
}

// SaveProfile adds or replaces the named profile
func (s *Store) SaveProfile(name string, profile Profile) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile %q: %w", name, err)
	}

	return s.update(func(settings *Settings) error {
		if settings.Profiles == nil {
			settings.Profiles = make(map[string]Profile)
		}
		settings.Profiles[name] = profile
		return nil
	})
}

// LoadProfile returns the named profile or ErrProfileNotFound
func (s *Store) LoadProfile(name string) (*Profile, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	profile, ok := settings.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return &profile, nil
}

// ProfileNames lists stored profiles in sorted order
func (s *Store) ProfileNames() ([]string, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}
	return settings.ProfileNames(), nil
}

// DeleteProfile removes the named profile. A schedule that points at it is
// disabled.
func (s *Store) DeleteProfile(name string) error {
	return s.update(func(settings *Settings) error {
		if _, ok := settings.Profiles[name]; !ok {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		delete(settings.Profiles, name)
		if settings.Schedule.Profile == name {
			settings.Schedule.Enabled = false
		}
		return nil
	})
}

// SaveSchedule validates and stores the schedule
func (s *Store) SaveSchedule(schedule Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	return s.update(func(settings *Settings) error {
		if schedule.Enabled {
			if _, ok := settings.Profiles[schedule.Profile]; !ok {
				return fmt.Errorf("%w: %s", ErrProfileNotFound, schedule.Profile)
			}
		}
		settings.Schedule = schedule
		return nil
	})
}

// Schedule returns the stored schedule
func (s *Store) Schedule() (Schedule, error) {
	settings, err := s.Load()
	if err != nil {
		return Schedule{}, err
	}
	return settings.Schedule, nil
}

// UpdateCredentials stores credential values for kind
func (s *Store) UpdateCredentials(kind transfer.DestinationKind, values map[string]string) error {
	return s.update(func(settings *Settings) error {
		for key, val := range values {
			if err := settings.Credentials.Set(kind, key, val); err != nil {
				return err
			}
		}
		return nil
	})
}

// DestinationConfig merges the stored credentials of kind with cfg.
// Non-empty values in cfg win.
func (s *Store) DestinationConfig(kind transfer.DestinationKind, cfg map[string]string) (transfer.DestinationConfig, error) {
	settings, err := s.Load()
	if err != nil {
		return nil, err
	}

	merged := settings.Credentials.Values(kind)
	for key, val := range cfg {
		if strings.TrimSpace(val) != "" {
			merged[key] = val
		}
	}
	return merged, nil
}

func (s *Store) update(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(settings); err != nil {
		return err
	}
	return s.write(settings)
}

// read loads the file without environment overrides so they are never persisted
func (s *Store) read() (*Settings, error) {
	settings := &Settings{}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", s.path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", s.path, err)
	}
	return settings, nil
}

// write replaces the file atomically; it holds secrets so it is 0600
func (s *Store) write(settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".multidest-backup-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set settings permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}
