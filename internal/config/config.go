package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultLogCapacity       = 50
	DefaultReconnectAttempts = 5
	DefaultHTTPPort          = 8080
)

// Config is the top-level monitor configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Log       LogConfig       `yaml:"log"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// HubConfig holds the remote hub settings prefilled into the page.
// Both fields may be left empty and typed into the page instead.
type HubConfig struct {
	// Endpoint is the hub URL (ws:// or wss://; http schemes are accepted
	// and rewritten by the transport).
	Endpoint string `yaml:"endpoint"`

	// Identity is the subscriber id passed as the user_id query parameter.
	Identity string `yaml:"identity"`
}

// LogConfig controls the in-memory record buffer.
type LogConfig struct {
	// Capacity is the maximum number of records kept, newest first.
	Capacity int `yaml:"capacity"`
}

// ReconnectConfig tunes the transport's automatic reconnect.
type ReconnectConfig struct {
	// MaxAttempts is the number of consecutive redials after a dropped
	// connection before giving up. Negative disables automatic reconnect.
	MaxAttempts int `yaml:"max_attempts"`
}

// HTTPConfig holds the local server settings.
type HTTPConfig struct {
	// Port is the local listen port for the page, API and metrics (default 8080).
	Port int `yaml:"port"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Log:       LogConfig{Capacity: DefaultLogCapacity},
		Reconnect: ReconnectConfig{MaxAttempts: DefaultReconnectAttempts},
		HTTP:      HTTPConfig{Port: DefaultHTTPPort},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [1, 65535]", cfg.HTTP.Port)
	}
	if cfg.Log.Capacity <= 0 {
		return fmt.Errorf("log.capacity must be positive, got %d", cfg.Log.Capacity)
	}
	if cfg.Hub.Endpoint != "" {
		u, err := url.Parse(cfg.Hub.Endpoint)
		if err != nil {
			return fmt.Errorf("hub.endpoint %q: %w", cfg.Hub.Endpoint, err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return fmt.Errorf("hub.endpoint %q: unsupported scheme %q", cfg.Hub.Endpoint, u.Scheme)
		}
	}
	return nil
}
