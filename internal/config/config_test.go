// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[endpoint]
url = "https://hooks.example.com/webhook/chat"
connect_timeout_secs = 5

[exchange]
max_retries = 2
base_delay_millis = 500
max_delay_millis = 2000

[history]
enabled = false

[ui]
theme = "dark"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Endpoint.URL != "https://hooks.example.com/webhook/chat" {
		t.Errorf("endpoint URL = %q", cfg.Endpoint.URL)
	}
	if cfg.Exchange.MaxRetries != 2 {
		t.Errorf("max retries = %d, want 2", cfg.Exchange.MaxRetries)
	}
	if cfg.BaseDelay() != 500*time.Millisecond {
		t.Errorf("base delay = %v, want 500ms", cfg.BaseDelay())
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("theme = %q, want dark", cfg.UI.Theme)
	}
	// Unset fields pick up defaults.
	if cfg.Exchange.MaxMessageLen != 5000 {
		t.Errorf("max message len = %d, want default 5000", cfg.Exchange.MaxMessageLen)
	}
}

func TestLoadFromPathRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
[endpoint]
url = "ftp://not-a-webhook"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("expected validation error for ftp scheme")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty endpoint url",
			mutate:  func(c *Config) { c.Endpoint.URL = "" },
			wantErr: "endpoint.url",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Exchange.MaxRetries = -1 },
			wantErr: "exchange.max_retries",
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.Exchange.MaxDelayMillis = 100 },
			wantErr: "exchange.max_delay_millis",
		},
		{
			name:    "unknown theme",
			mutate:  func(c *Config) { c.UI.Theme = "solarized" },
			wantErr: "ui.theme",
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Endpoint.ConnectTimeoutSecs = 0 },
			wantErr: "endpoint.connect_timeout_secs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RELAYCHAT_ENDPOINT", "https://env.example.com/chat")
	t.Setenv("RELAYCHAT_ACTOR", "envuser")
	t.Setenv("RELAYCHAT_HISTORY", "false")
	t.Setenv("RELAYCHAT_MAX_RETRIES", "5")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Endpoint.URL != "https://env.example.com/chat" {
		t.Errorf("endpoint = %q", cfg.Endpoint.URL)
	}
	if cfg.History.Actor != "envuser" {
		t.Errorf("actor = %q", cfg.History.Actor)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled via env")
	}
	if cfg.Exchange.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.Exchange.MaxRetries)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.SetDefaults()
	cfg.Endpoint.URL = "https://saved.example.com/chat"
	cfg.UI.Theme = "light"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if loaded.Endpoint.URL != cfg.Endpoint.URL {
		t.Errorf("round-tripped endpoint = %q, want %q", loaded.Endpoint.URL, cfg.Endpoint.URL)
	}
	if loaded.UI.Theme != "light" {
		t.Errorf("round-tripped theme = %q, want light", loaded.UI.Theme)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	write := func(url string) {
		t.Helper()
		content := "[endpoint]\nurl = \"" + url + "\"\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("https://first.example.com/chat")

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	write("https://second.example.com/chat")

	select {
	case cfg := <-reloaded:
		if cfg.Endpoint.URL != "https://second.example.com/chat" {
			t.Errorf("reloaded endpoint = %q", cfg.Endpoint.URL)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload after config change")
	}
}

func TestWatcherKeepsPreviousOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("[endpoint]\nurl = \"https://ok.example.com\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Broken TOML must not reach the handler.
	if err := os.WriteFile(path, []byte("[endpoint\nurl ="), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("handler called with %+v for an invalid config", cfg)
	case <-time.After(1 * time.Second):
		// Expected: no reload.
	}
}
