package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("reconnect max attempts = %d, want 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Ack.MaxAttempts != 3 {
		t.Errorf("ack max attempts = %d, want 3", cfg.Ack.MaxAttempts)
	}
	if cfg.CachePath != filepath.Join(dir, "cache.db") {
		t.Errorf("cache path = %q", cfg.CachePath)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default(filepath.Dir(path))
	cfg.WebsocketURL = "wss://staging.chirp.social/realtime"
	cfg.Reconnect.MaxAttempts = 9
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.WebsocketURL != cfg.WebsocketURL {
		t.Errorf("websocket url = %q, want %q", loaded.WebsocketURL, cfg.WebsocketURL)
	}
	if loaded.Reconnect.MaxAttempts != 9 {
		t.Errorf("reconnect max attempts = %d, want 9", loaded.Reconnect.MaxAttempts)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("websocket_url = \"wss://lan.local/rt\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.WebsocketURL != "wss://lan.local/rt" {
		t.Errorf("websocket url = %q", loaded.WebsocketURL)
	}
	if loaded.Reconnect.MaxAttempts != 5 {
		t.Errorf("reconnect max attempts = %d, want default 5", loaded.Reconnect.MaxAttempts)
	}
}
