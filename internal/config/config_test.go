package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rosweb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, Validate(cfg))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
client:
  bridge_url: http://robot.local:9090
  request_timeout: 2s
  max_attempts: 3
  tf_interval: 250ms
server:
  long_poll_timeout: 1s
  valkey:
    address: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://robot.local:9090", cfg.Client.BridgeURL)
	assert.Equal(t, 2*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 3, cfg.Client.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.TfInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.RetryBackoff)
	assert.Equal(t, "localhost:6379", cfg.Server.Valkey.Address)
	assert.Equal(t, "rosweb:", cfg.Server.Valkey.Prefix)
	assert.Equal(t, ":8080", cfg.Server.Listen)
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"relative url", "client:\n  bridge_url: /ros\n"},
		{"zero attempts", "client:\n  max_attempts: 0\n"},
		{"bad level", "log_level: loud\n"},
		{"zero long poll", "server:\n  long_poll_timeout: 0s\n"},
		{"request timeout equals long poll", "client:\n  request_timeout: 10s\nserver:\n  long_poll_timeout: 10s\n"},
		{"request timeout below long poll", "client:\n  request_timeout: 5s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestDefaultRequestTimeoutOutlastsLongPoll(t *testing.T) {
	cfg := Default()
	assert.Greater(t, cfg.Client.RequestTimeout, cfg.Server.LongPollTimeout)
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	cfg, err := Load(writeConfig(t, "client:\n  bridge_url: not-a-url\n"))
	require.NoError(t, err)
	require.Error(t, Validate(cfg))

	cfg.Client.BridgeURL = "http://robot.local:8080"
	require.NoError(t, Validate(cfg))
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "client: [\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.LogLevel = "debug"
	logger, err = cfg.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
