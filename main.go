// relaychat - A terminal client for streaming webhook chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/jeranaias/relaychat/internal/cli"
	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/engine"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/persist"
	"github.com/jeranaias/relaychat/internal/retry"
	"github.com/jeranaias/relaychat/internal/store"
	"github.com/jeranaias/relaychat/internal/transport"
	"github.com/jeranaias/relaychat/internal/ui/chat"
	"github.com/jeranaias/relaychat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: ~/.relaychat/config.toml)")
		endpoint   = flag.String("endpoint", "", "chat webhook URL (overrides config)")
		sessionID  = flag.String("session", "", "conversation id to resume (default: new conversation)")
		plain      = flag.Bool("plain", false, "use the plain REPL instead of the TUI")
		noHistory  = flag.Bool("no-history", false, "disable conversation persistence")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("relaychat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath, *endpoint, *sessionID, *plain, *noHistory); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, endpoint, sessionID string, plain, noHistory bool) error {
	// Load configuration, then apply CLI overrides on top.
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if endpoint != "" {
		cfg.Endpoint.URL = endpoint
	}
	if noHistory {
		cfg.History.Enabled = false
	}

	// Stream transport against the webhook endpoint.
	client := transport.NewClientWithConfig(transport.Config{
		Endpoint:       cfg.Endpoint.URL,
		ConnectTimeout: cfg.ConnectTimeout(),
		UserAgent:      cfg.Endpoint.UserAgent,
	})

	// Persistence bridge; failures here degrade to an in-memory
	// session rather than aborting startup.
	var bridge persist.Bridge
	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			path, err = persist.DefaultPath()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
			}
		}
		if path != "" {
			sqlBridge, err := persist.OpenSQLite(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
			} else {
				defer sqlBridge.Close()
				bridge = sqlBridge
			}
		}
	}

	conversationID := sessionID
	if conversationID == "" {
		conversationID = model.GenerateConversationID()
	}

	var limiter *rate.Limiter
	if n := cfg.Exchange.SendsPerMinute; n > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}

	msgStore := store.New()
	eng := engine.New(msgStore, client, bridge, engine.Config{
		ConversationID: conversationID,
		Actor:          cfg.History.Actor,
		MaxMessageLen:  cfg.Exchange.MaxMessageLen,
		Policy: retry.Policy{
			BaseDelay:  cfg.BaseDelay(),
			MaxDelay:   cfg.MaxDelay(),
			MaxRetries: cfg.Exchange.MaxRetries,
		},
		Limiter: limiter,
	})

	// Resuming a session loads its transcript before the first render.
	if bridge != nil && sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		history, err := bridge.Load(ctx, conversationID, cfg.History.Actor)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load history: %v\n", err)
		} else {
			msgStore.ReplaceAll(history)
		}
	}

	// Hot-reload: endpoint changes take effect on the next exchange.
	if watchPath, perr := resolveConfigPath(configPath); perr == nil {
		if watcher, werr := config.NewWatcher(watchPath, func(updated *config.Config) {
			client.SetEndpoint(updated.Endpoint.URL)
		}); werr == nil {
			if werr := watcher.Watch(); werr == nil {
				defer watcher.Close()
			}
		}
	}

	if plain || !cli.IsTTY() {
		return cli.Run(eng, cfg)
	}
	return runTUI(eng, cfg)
}

// resolveConfigPath returns the config file to watch for changes.
func resolveConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	return config.Path()
}

// runTUI starts the full-screen chat interface.
func runTUI(eng *engine.Engine, cfg *config.Config) error {
	theme := styles.NewTheme()

	m := chat.New(eng, theme, chat.Options{
		Markdown:      cfg.UI.Markdown,
		MaxMessageLen: cfg.Exchange.MaxMessageLen,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running relaychat: %w", err)
	}

	// An exchange may still hold the transport open; release it so the
	// process exits promptly.
	eng.Stop()
	return nil
}
