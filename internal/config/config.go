// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for relaychat.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - path given on the command line
//   - ~/.relaychat/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete relaychat configuration.
type Config struct {
	// Endpoint configuration
	Endpoint EndpointConfig `toml:"endpoint"`

	// Exchange configuration
	Exchange ExchangeConfig `toml:"exchange"`

	// History persistence configuration
	History HistoryConfig `toml:"history"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// EndpointConfig describes the webhook the client talks to.
type EndpointConfig struct {
	// URL is the chat webhook URL. Must be http or https.
	URL string `toml:"url"`
	// ConnectTimeoutSecs bounds connection establishment. Receiving the
	// streamed body is never subject to this timeout.
	ConnectTimeoutSecs int `toml:"connect_timeout_secs"`
	// UserAgent is sent on every request (empty = built-in default)
	UserAgent string `toml:"user_agent"`
}

// ExchangeConfig tunes validation and retry behavior.
type ExchangeConfig struct {
	// MaxMessageLen is the maximum user message length in characters
	MaxMessageLen int `toml:"max_message_len"`
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `toml:"max_retries"`
	// BaseDelayMillis is the first backoff delay; doubles per retry
	BaseDelayMillis int `toml:"base_delay_millis"`
	// MaxDelayMillis caps the backoff delay
	MaxDelayMillis int `toml:"max_delay_millis"`
	// SendsPerMinute throttles outgoing exchanges (0 = unthrottled)
	SendsPerMinute int `toml:"sends_per_minute"`
}

// HistoryConfig controls local conversation persistence.
type HistoryConfig struct {
	// Enabled controls whether exchanges are saved at all
	Enabled bool `toml:"enabled"`
	// Path is the sqlite database path (empty = ~/.relaychat/history.db)
	Path string `toml:"path"`
	// Actor identifies the local user for ownership checks.
	// If not set, derived from the OS username.
	Actor string `toml:"actor"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// Markdown renders assistant replies as markdown in the TUI
	Markdown bool `toml:"markdown"`
	// CompactMode uses a more compact layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:                "http://127.0.0.1:5678/webhook/chat",
			ConnectTimeoutSecs: 10,
			UserAgent:          "",
		},

		Exchange: ExchangeConfig{
			MaxMessageLen:   5000,
			MaxRetries:      3,
			BaseDelayMillis: 1000,
			MaxDelayMillis:  4000,
			SendsPerMinute:  0, // unthrottled
		},

		History: HistoryConfig{
			Enabled: true,
			Path:    "",
			Actor:   "",
		},

		UI: UIConfig{
			Theme:       "auto",
			Markdown:    true,
			CompactMode: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the relaychat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relaychat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back
// to built-in defaults when the file does not exist. Environment
// overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
// SECURITY: 0600 permissions, the file may hold a private webhook URL.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# relaychat configuration file")
	fmt.Fprintln(&buf, "# Generated by relaychat - edit with care")
	fmt.Fprintln(&buf, "")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Endpoint.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "endpoint.url",
			Message: "must not be empty",
		})
	} else {
		u, err := url.Parse(c.Endpoint.URL)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "endpoint.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, ValidationError{
				Field:   "endpoint.url",
				Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme),
			})
		}
	}

	if c.Endpoint.ConnectTimeoutSecs < 1 || c.Endpoint.ConnectTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "endpoint.connect_timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Endpoint.ConnectTimeoutSecs),
		})
	}

	if c.Exchange.MaxMessageLen < 1 {
		errs = append(errs, ValidationError{
			Field:   "exchange.max_message_len",
			Message: "must be positive",
		})
	}

	if c.Exchange.MaxRetries < 0 || c.Exchange.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "exchange.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Exchange.MaxRetries),
		})
	}

	if c.Exchange.BaseDelayMillis < 1 {
		errs = append(errs, ValidationError{
			Field:   "exchange.base_delay_millis",
			Message: "must be positive",
		})
	}

	if c.Exchange.MaxDelayMillis < c.Exchange.BaseDelayMillis {
		errs = append(errs, ValidationError{
			Field:   "exchange.max_delay_millis",
			Message: "must be at least base_delay_millis",
		})
	}

	if c.Exchange.SendsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "exchange.sends_per_minute",
			Message: "must be non-negative",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value
// configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Endpoint.URL == "" {
		c.Endpoint.URL = defaults.Endpoint.URL
	}
	if c.Endpoint.ConnectTimeoutSecs == 0 {
		c.Endpoint.ConnectTimeoutSecs = defaults.Endpoint.ConnectTimeoutSecs
	}

	if c.Exchange.MaxMessageLen == 0 {
		c.Exchange.MaxMessageLen = defaults.Exchange.MaxMessageLen
	}
	if c.Exchange.BaseDelayMillis == 0 {
		c.Exchange.BaseDelayMillis = defaults.Exchange.BaseDelayMillis
	}
	if c.Exchange.MaxDelayMillis == 0 {
		c.Exchange.MaxDelayMillis = defaults.Exchange.MaxDelayMillis
	}

	if c.History.Actor == "" {
		c.History.Actor = localUser()
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// localUser derives an actor name from the environment.
func localUser() string {
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "local"
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RELAYCHAT_ENDPOINT: overrides endpoint.url
//   - RELAYCHAT_ACTOR: overrides history.actor
//   - RELAYCHAT_HISTORY: set to "0" or "false" to disable persistence
//   - RELAYCHAT_HISTORY_PATH: overrides history.path
//   - RELAYCHAT_THEME: overrides ui.theme
//   - RELAYCHAT_MAX_RETRIES: overrides exchange.max_retries
func (c *Config) ApplyEnvOverrides() {
	if endpoint := os.Getenv("RELAYCHAT_ENDPOINT"); endpoint != "" {
		c.Endpoint.URL = endpoint
	}

	if actor := os.Getenv("RELAYCHAT_ACTOR"); actor != "" {
		c.History.Actor = actor
	}

	if history := os.Getenv("RELAYCHAT_HISTORY"); history != "" {
		c.History.Enabled = history != "0" && strings.ToLower(history) != "false"
	}

	if path := os.Getenv("RELAYCHAT_HISTORY_PATH"); path != "" {
		c.History.Path = path
	}

	if theme := os.Getenv("RELAYCHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}

	if retries := os.Getenv("RELAYCHAT_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			c.Exchange.MaxRetries = n
		}
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ConnectTimeout returns the endpoint connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Endpoint.ConnectTimeoutSecs) * time.Second
}

// BaseDelay returns the first backoff delay as a duration.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Exchange.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the backoff cap as a duration.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Exchange.MaxDelayMillis) * time.Millisecond
}
