package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents ~/.chirp/config.toml.
type Config struct {
	// WebsocketURL is the realtime gateway endpoint.
	WebsocketURL string `toml:"websocket_url"`
	// APIURL is the REST base used for acks, fetches and sends.
	APIURL string `toml:"api_url"`
	// CachePath is the SQLite offline cache location. Empty disables caching.
	CachePath string `toml:"cache_path"`
	// LogPath is the sync log file location.
	LogPath string `toml:"log_path"`

	Reconnect ReconnectConfig `toml:"reconnect"`
	Ack       AckConfig       `toml:"ack"`
}

// ReconnectConfig tunes the connection retry policy.
type ReconnectConfig struct {
	BaseDelayMS   int `toml:"base_delay_ms"`
	MaxDelayMS    int `toml:"max_delay_ms"`
	MaxAttempts   int `toml:"max_attempts"`
	HeartbeatSecs int `toml:"heartbeat_secs"`
}

// AckConfig tunes the acknowledgement retry queue.
type AckConfig struct {
	MaxAttempts   int `toml:"max_attempts"`
	BackoffBaseMS int `toml:"backoff_base_ms"`
}

// Default returns the built-in configuration rooted at the given data dir.
func Default(dataDir string) *Config {
	return &Config{
		WebsocketURL: "wss://api.chirp.social/realtime",
		APIURL:       "https://api.chirp.social/v1",
		CachePath:    filepath.Join(dataDir, "cache.db"),
		LogPath:      filepath.Join(dataDir, "chirpd.log"),
		Reconnect: ReconnectConfig{
			BaseDelayMS:   1000,
			MaxDelayMS:    30000,
			MaxAttempts:   5,
			HeartbeatSecs: 25,
		},
		Ack: AckConfig{
			MaxAttempts:   3,
			BackoffBaseMS: 500,
		},
	}
}

// Load reads config from the given path, filling unset fields from the
// defaults for the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// BaseDelay returns the reconnect base delay as a duration.
func (r ReconnectConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the reconnect delay ceiling as a duration.
func (r ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Heartbeat returns the ping interval as a duration.
func (r ReconnectConfig) Heartbeat() time.Duration {
	return time.Duration(r.HeartbeatSecs) * time.Second
}

// BackoffBase returns the ack retry base delay as a duration.
func (a AckConfig) BackoffBase() time.Duration {
	return time.Duration(a.BackoffBaseMS) * time.Millisecond
}
