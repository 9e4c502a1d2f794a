package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multidest-backup/internal/transfer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "nested", "settings.yaml"))
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)

	settings, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, settings.Profiles)
	assert.False(t, settings.Schedule.Enabled)

	names, err := s.ProfileNames()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStore_CorruptFileIsAnError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0700))
	require.NoError(t, os.WriteFile(s.Path(), []byte("profiles: [not: a map"), 0600))

	_, err := s.Load()
	assert.Error(t, err)
}

func TestStore_Profiles(t *testing.T) {
	s := newTestStore(t)

	photos := Profile{
		Sources:     []string{"/home/me/Pictures"},
		Destination: "dropbox",
		Config:      map[string]string{"folder_path": "/Photos"},
	}
	require.NoError(t, s.SaveProfile("photos", photos))
	require.NoError(t, s.SaveProfile("docs", Profile{Sources: []string{"/home/me/Documents"}, Destination: "local"}))

	names, err := s.ProfileNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "photos"}, names)

	got, err := s.LoadProfile("photos")
	require.NoError(t, err)
	assert.Equal(t, photos, *got)

	require.NoError(t, s.DeleteProfile("docs"))
	_, err = s.LoadProfile("docs")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
	assert.True(t, errors.Is(s.DeleteProfile("docs"), ErrProfileNotFound))
}

func TestStore_SaveProfileValidates(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveProfile("", Profile{Sources: []string{"/a"}, Destination: "local"}))
	assert.Error(t, s.SaveProfile("empty", Profile{Destination: "local"}))
	assert.Error(t, s.SaveProfile("nodest", Profile{Sources: []string{"/a"}}))
}

func TestStore_FileIsPrivate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateCredentials(transfer.DestinationDropbox, map[string]string{"token": "sl.abc"}))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestStore_DestinationConfigMergesCredentials(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateCredentials(transfer.DestinationNAS, map[string]string{
		"username": "backup",
		"password": "stored",
	}))

	cfg, err := s.DestinationConfig(transfer.DestinationNAS, map[string]string{
		"server":   "10.0.0.2",
		"share":    "data",
		"username": "override",
		"password": "",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.DestinationConfig{
		"server":   "10.0.0.2",
		"share":    "data",
		"username": "override",
		"password": "stored",
	}, cfg)
}

func TestStore_UpdateCredentialsRejectsUnknownKey(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateCredentials(transfer.DestinationLocal, map[string]string{"token": "x"})
	assert.Error(t, err)
}

func TestStore_EnvironmentOverridesAreNotPersisted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateCredentials(transfer.DestinationDropbox, map[string]string{"token": "from-file"}))

	t.Setenv("BACKUP_DROPBOX_TOKEN", "from-env")

	cfg, err := s.DestinationConfig(transfer.DestinationDropbox, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg["token"])

	// a write while the override is active must keep the file value
	require.NoError(t, s.SaveProfile("p", Profile{Sources: []string{"/a"}, Destination: "dropbox"}))
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "from-file")
	assert.NotContains(t, string(data), "from-env")
}

func TestStore_Schedule(t *testing.T) {
	s := newTestStore(t)

	err := s.SaveSchedule(Schedule{Enabled: true, Frequency: FrequencyDaily, Hour: 2, Profile: "missing"})
	assert.True(t, errors.Is(err, ErrProfileNotFound))

	require.NoError(t, s.SaveProfile("nightly", Profile{Sources: []string{"/srv"}, Destination: "local"}))
	want := Schedule{Enabled: true, Frequency: FrequencyWeekly, Hour: 23, Minute: 45, Profile: "nightly"}
	require.NoError(t, s.SaveSchedule(want))

	got, err := s.Schedule()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.DeleteProfile("nightly"))
	got, err = s.Schedule()
	require.NoError(t, err)
	assert.False(t, got.Enabled, "deleting the scheduled profile disables the schedule")
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"disabled zero value", Schedule{}, false},
		{"daily", Schedule{Enabled: true, Frequency: FrequencyDaily, Hour: 3, Profile: "p"}, false},
		{"bad frequency", Schedule{Frequency: "hourly"}, true},
		{"hour out of range", Schedule{Frequency: FrequencyDaily, Hour: 24}, true},
		{"minute out of range", Schedule{Frequency: FrequencyDaily, Minute: -1}, true},
		{"enabled without profile", Schedule{Enabled: true, Frequency: FrequencyMonthly}, true},
		{"enabled without frequency", Schedule{Enabled: true, Profile: "p"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedule_String(t *testing.T) {
	assert.Equal(t, "disabled", Schedule{}.String())
	assert.Equal(t, `weekly on Monday at 07:05, profile "p"`,
		Schedule{Enabled: true, Frequency: FrequencyWeekly, Hour: 7, Minute: 5, Profile: "p"}.String())
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "25:00", "12:60", "noon"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestProfile_Request(t *testing.T) {
	p := Profile{Sources: []string{"/a", "/b"}, Destination: "smb"}
	req := p.Request(transfer.DestinationConfig{"server": "s"})

	assert.Equal(t, transfer.DestinationNAS, req.Destination)
	assert.Equal(t, []string{"/a", "/b"}, req.Sources)
	req.Sources[0] = "/changed"
	assert.Equal(t, "/a", p.Sources[0], "request does not alias the profile")
}
