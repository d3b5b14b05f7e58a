package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, path, resolved)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10011, cfg.Voice.Port)
	assert.Equal(t, 1, cfg.Voice.ServerID)
	assert.Equal(t, 60*time.Second, cfg.Voice.EventTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Reconnect.MaxElapsed)

	// A default config file should have been written for next time.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
voice:
  host: ts.example.org
  username: serveradmin
  password: hunter2
  event_timeout: 30s
matrix:
  homeserver: https://matrix.example.org
  username: bridge
  password: secret
  event_rooms:
    - "!abc:example.org"
    - "!def:example.org"
`)

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ts.example.org:10011", cfg.Voice.Addr())
	assert.Equal(t, 30*time.Second, cfg.Voice.EventTimeout)
	assert.Equal(t, []string{"!abc:example.org", "!def:example.org"}, cfg.Matrix.EventRooms)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
voice:
  host: ts.example.org
`)
	t.Setenv("TSBRIDGE_VOICE_HOST", "other.example.org")
	t.Setenv("TSBRIDGE_MATRIX_EVENT_ROOMS", "!a:example.org, !b:example.org")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, "other.example.org", cfg.Voice.Host)
	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, cfg.Matrix.EventRooms)
}

func TestValidateReportsFirstMissingOption(t *testing.T) {
	cfg := Default()
	require.ErrorContains(t, cfg.Validate(), "voice.host")

	cfg.Voice.Host = "ts.example.org"
	cfg.Voice.Username = "serveradmin"
	cfg.Voice.Password = "hunter2"
	require.ErrorContains(t, cfg.Validate(), "matrix.homeserver")

	cfg.Matrix.Homeserver = "https://matrix.example.org"
	cfg.Matrix.Username = "bridge"
	cfg.Matrix.Password = "secret"
	require.ErrorContains(t, cfg.Validate(), "event_rooms")

	cfg.Matrix.EventRooms = []string{"!abc:example.org"}
	require.NoError(t, cfg.Validate())
}
