package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "flowdeck.yaml", `
engine_url: http://localhost:8000
poll_interval: 2s
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.EngineURL)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, "debug", cfg.LogLevel)

	// Unset values fall back to defaults
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	require.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, "ws://localhost:8000/ws/workflows", cfg.StreamURL)
}

func TestStreamURLDerivation(t *testing.T) {
	tests := []struct {
		engineURL string
		want      string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/workflows"},
		{"https://engine.example.com/", "wss://engine.example.com/ws/workflows"},
		{"", ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, deriveStreamURL(tc.engineURL))
	}

	// An explicit stream_url wins over derivation.
	path := writeFile(t, "flowdeck.yaml", `
engine_url: http://localhost:8000
stream_url: ws://elsewhere:9000/ws/workflows
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws://elsewhere:9000/ws/workflows", cfg.StreamURL)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "flowdeck.json", `{
  "engine_url": "http://engine:9000",
  "stream_url": "ws://engine:9000/ws/workflows"
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://engine:9000", cfg.EngineURL)
	require.Equal(t, "ws://engine:9000/ws/workflows", cfg.StreamURL)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errText string
	}{
		{"unsupported extension", "flowdeck.toml", "engine_url = 'x'", "unsupported file extension"},
		{"missing engine url", "flowdeck.yaml", "log_level: info", "engine_url is required"},
		{"bad log level", "flowdeck.yaml", "engine_url: http://x\nlog_level: loud", "invalid log level"},
		{"malformed yaml", "flowdeck.yaml", "engine_url: [", "failed to parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	require.Equal(t, "info", cfg.LogLevel)
}
