package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:8000", cfg.Server.WebsocketURL)
	assert.Equal(t, 5*time.Second, cfg.Client.TypingTimeout)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  ws_url: wss://chat.example.com
  api_url: https://chat.example.com/api
client:
  typing_timeout: 3s
reconnect:
  max_attempts: -1
logger:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com", cfg.Server.WebsocketURL)
	assert.Equal(t, 3*time.Second, cfg.Client.TypingTimeout)
	assert.Equal(t, -1, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Client.RequestTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
`)
	t.Setenv("CHATSYNC_LOGGER_LEVEL", "warn")
	t.Setenv("CHATSYNC_STORE_SECRET", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, "hunter2", cfg.Store.Secret)
}

func TestLoad_EnvKeys(t *testing.T) {
	t.Setenv("CHATSYNC_SERVER_WEBSOCKET_URL", "wss://chat.example.com")
	t.Setenv("CHATSYNC_RECONNECT_MAX_ATTEMPTS", "-1")
	t.Setenv("CHATSYNC_API_ACCESS_KEY", "k3y")
	t.Setenv("PATH", "/usr/bin")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com", cfg.Server.WebsocketURL)
	assert.Equal(t, -1, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, "k3y", cfg.API.AccessKey)
	assert.Equal(t, "chatsync.db", cfg.Store.Path)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, `
server:
  websocket: ws://x
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http websocket url", func(c *Config) { c.Server.WebsocketURL = "http://127.0.0.1:8000" }},
		{"missing api host", func(c *Config) { c.Server.APIURL = "http:///api" }},
		{"zero typing timeout", func(c *Config) { c.Client.TypingTimeout = 0 }},
		{"zero page rate", func(c *Config) { c.Client.PageRateLimit = 0 }},
		{"max below initial", func(c *Config) { c.Reconnect.MaxInterval = time.Millisecond }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"empty listen", func(c *Config) { c.API.Listen = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}
