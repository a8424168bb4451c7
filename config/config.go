// Package config holds client configuration for the flowdeck core: where the
// remote execution engine lives and how aggressively the synchronizer polls
// and reconnects. Files may be YAML or JSON, selected by extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	DefaultPollInterval   = time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config configures the engine client and execution synchronizer.
type Config struct {
	// EngineURL is the base URL of the remote execution engine.
	EngineURL string `yaml:"engine_url" json:"engine_url"`

	// StreamURL is the websocket endpoint delivering push events. When empty
	// it is derived from EngineURL (http becomes ws, plus /ws/workflows).
	StreamURL string `yaml:"stream_url,omitempty" json:"stream_url,omitempty"`

	// PollInterval is the fixed interval between execution state polls.
	PollInterval time.Duration `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// ReconnectDelay is the fixed delay before a push channel reconnect.
	ReconnectDelay time.Duration `yaml:"reconnect_delay,omitempty" json:"reconnect_delay,omitempty"`

	// RequestTimeout bounds each HTTP request to the engine.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// Default returns a Config with all tunables at their defaults.
func Default() *Config {
	return &Config{
		PollInterval:   DefaultPollInterval,
		ReconnectDelay: DefaultReconnectDelay,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       "info",
	}
}

// Load reads a Config from a file. The extension determines the format:
// - .json -> JSON
// - .yml or .yaml -> YAML
// Unset tunables are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	config := &Config{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		err = json.Unmarshal(data, config)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return fmt.Errorf("engine_url is required")
	}
	if c.LogLevel != "" && !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.StreamURL == "" {
		c.StreamURL = deriveStreamURL(c.EngineURL)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// deriveStreamURL maps the engine's HTTP base URL to its push channel
// endpoint, served at /ws/workflows over the websocket scheme.
func deriveStreamURL(engineURL string) string {
	if engineURL == "" {
		return ""
	}
	url := strings.TrimSuffix(engineURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/ws/workflows"
}

func isValidLogLevel(level string) bool {
	return level == "debug" || level == "info" || level == "warn" || level == "error"
}
