package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "multidest-backup/internal/errors"
	"multidest-backup/internal/transfer"
)

func TestDestinationFlags_Config(t *testing.T) {
	f := destinationFlags{
		path:        "/remote/backups",
		server:      "files.example.com",
		share:       "data",
		user:        "backup",
		password:    "pw",
		port:        "2222",
		folder:      "Photos",
		token:       "tok",
		credentials: "/keys/sa.json",
		options:     []string{"known_hosts=/etc/ssh/known_hosts", "prefix=a=b"},
	}

	tests := []struct {
		kind transfer.DestinationKind
		want map[string]string
	}{
		{transfer.DestinationLocal, map[string]string{"path": "/remote/backups"}},
		{transfer.DestinationNAS, map[string]string{"server": "files.example.com", "share": "data", "username": "backup", "password": "pw", "port": "2222"}},
		{transfer.DestinationGDrive, map[string]string{"credentials_path": "/keys/sa.json", "folder_name": "Photos"}},
		{transfer.DestinationDropbox, map[string]string{"token": "tok", "folder_path": "Photos"}},
		{transfer.DestinationS3, map[string]string{}},
		{transfer.DestinationSFTP, map[string]string{"host": "files.example.com", "username": "backup", "password": "pw", "port": "2222", "path": "/remote/backups"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := f.config(tt.kind)
			require.NoError(t, err)
			tt.want["known_hosts"] = "/etc/ssh/known_hosts"
			tt.want["prefix"] = "a=b"
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDestinationFlags_InvalidOption(t *testing.T) {
	f := destinationFlags{options: []string{"=x"}}
	_, err := f.config(transfer.DestinationS3)
	assert.Error(t, err)

	f = destinationFlags{options: []string{"bucket"}}
	_, err = f.config(transfer.DestinationS3)
	assert.Error(t, err)
}

func TestDestinationFlags_Kind(t *testing.T) {
	assert.Equal(t, transfer.DestinationNAS, (&destinationFlags{dest: "SMB"}).kind("local"))
	assert.Equal(t, transfer.DestinationLocal, (&destinationFlags{}).kind("local"))
	assert.Equal(t, transfer.DestinationKind(""), (&destinationFlags{}).kind(""))
}

func TestWithoutSecrets(t *testing.T) {
	got := withoutSecrets(map[string]string{
		"server":      "s",
		"password":    "p",
		"token":       "t",
		"account_key": "k",
	})
	assert.Equal(t, map[string]string{"server": "s"}, got)
}

func TestPromptMissingPassword(t *testing.T) {
	saved := passwordPrompt
	defer func() { passwordPrompt = saved }()

	var prompts []string
	passwordPrompt = func(label string) (string, bool, error) {
		prompts = append(prompts, label)
		return "typed", true, nil
	}

	cfg := transfer.DestinationConfig{"username": "backup"}
	require.NoError(t, promptMissingPassword(transfer.DestinationNAS, cfg))
	assert.Equal(t, "typed", cfg["password"])
	assert.Equal(t, []string{"Password for backup"}, prompts)

	// already set, key based, or not password based
	require.NoError(t, promptMissingPassword(transfer.DestinationNAS, transfer.DestinationConfig{"password": "x"}))
	require.NoError(t, promptMissingPassword(transfer.DestinationSFTP, transfer.DestinationConfig{"key_path": "~/.ssh/id"}))
	require.NoError(t, promptMissingPassword(transfer.DestinationDropbox, transfer.DestinationConfig{}))
	assert.Len(t, prompts, 1)

	passwordPrompt = func(string) (string, bool, error) { return "", false, nil }
	cfg = transfer.DestinationConfig{}
	require.NoError(t, promptMissingPassword(transfer.DestinationSFTP, cfg))
	assert.NotContains(t, cfg, "password")

	passwordPrompt = func(string) (string, bool, error) { return "", false, errors.New("tty closed") }
	assert.Error(t, promptMissingPassword(transfer.DestinationNAS, transfer.DestinationConfig{}))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(nil))
	assert.NoError(t, resultError(&transfer.Result{Outcome: transfer.OutcomeCompleted, Processed: 3}))
	assert.NoError(t, resultError(&transfer.Result{Outcome: transfer.OutcomeStopped, Processed: 3, Failed: 1}),
		"a stopped run exits cleanly")

	err := resultError(&transfer.Result{Outcome: transfer.OutcomeCompleted, Processed: 4, Failed: 1})
	require.Error(t, err)
	assert.Equal(t, "1 of 4 files could not be backed up, see the log above", apperrors.FormatUserError(err))
}
