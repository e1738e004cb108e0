package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.Validate())

	assert.Equal(t, int64(1), opts.InitialRecordVersion)
	assert.Equal(t, 250*time.Millisecond, opts.DirtyFlushInterval)
	assert.Equal(t, StrategyRemoteWins, opts.MergeStrategy)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
initial_record_version: 0
discard_timeout: 2s
ack_timeout: 500ms
merge_strategy: local-wins
read_only: true
write_whitelist:
  - drafts/
storage:
  driver: sqlite
  path: /tmp/records.sqlite
  encrypt: true
transport:
  url: ws://example.com/ws
  reconnect_burst: 5
log_level: debug
`)

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(0), opts.InitialRecordVersion)
	assert.Equal(t, 2*time.Second, opts.DiscardTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.AckTimeout)
	assert.Equal(t, StrategyLocalWins, opts.MergeStrategy)
	assert.True(t, opts.ReadOnly)
	assert.Equal(t, []string{"drafts/"}, opts.WriteWhitelist)
	assert.Equal(t, Storage{Driver: DriverSQLite, Path: "/tmp/records.sqlite", Encrypt: true}, opts.Storage)
	assert.Equal(t, "ws://example.com/ws", opts.Transport.URL)
	assert.Equal(t, 5, opts.Transport.ReconnectBurst)

	// Не заданные поля берутся из значений по умолчанию
	assert.Equal(t, 10*time.Second, opts.ReadTimeout)
	assert.Equal(t, time.Second, opts.Transport.ReconnectInterval)

	level, err := opts.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "bad yaml", content: "storage: [", errMsg: "failed to parse config"},
		{name: "bad duration", content: "ack_timeout: soon", errMsg: "failed to parse config"},
		{name: "negative version", content: "initial_record_version: -2", errMsg: "initial_record_version"},
		{name: "negative duration", content: "read_timeout: -1s", errMsg: "read_timeout"},
		{name: "unknown strategy", content: "merge_strategy: newest", errMsg: "merge_strategy"},
		{name: "unknown driver", content: "storage:\n  driver: redis", errMsg: "storage.driver"},
		{name: "empty path", content: "storage:\n  path: \"\"", errMsg: "storage.path"},
		{name: "zero burst", content: "transport:\n  reconnect_burst: 0", errMsg: "reconnect_burst"},
		{name: "unknown level", content: "log_level: loud", errMsg: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOptions_CanWrite(t *testing.T) {
	tests := []struct {
		name      string
		record    string
		whitelist []string
		readOnly  bool
		want      bool
	}{
		{name: "writable mode", record: "any", want: true},
		{name: "read only", record: "users/a", readOnly: true, want: false},
		{name: "whitelisted prefix", record: "drafts/1", readOnly: true, whitelist: []string{"drafts/"}, want: true},
		{name: "not whitelisted", record: "users/1", readOnly: true, whitelist: []string{"drafts/"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Default()
			opts.ReadOnly = tt.readOnly
			opts.WriteWhitelist = tt.whitelist
			assert.Equal(t, tt.want, opts.CanWrite(tt.record))
		})
	}
}
