// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for relaychat.
//
// TOML configuration with sensible defaults, environment variable
// overrides, validation, and live reload via filesystem watching.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - EndpointConfig: Chat webhook endpoint settings
//   - ExchangeConfig: Retry, backoff, and throttling behavior
//   - Watcher: Reloads the config file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RELAYCHAT_*)
//   - ~/.relaychat/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	url := cfg.Endpoint.URL
//	timeout := cfg.ConnectTimeout()
package config
