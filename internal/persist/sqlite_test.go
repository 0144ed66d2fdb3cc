// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jeranaias/relaychat/internal/model"
)

func openTestBridge(t *testing.T) *SQLiteBridge {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	b := openTestBridge(t)
	ctx := context.Background()

	if err := b.Save(ctx, "conv1", model.RoleUser, "hello", "alice"); err != nil {
		t.Fatalf("Save user: %v", err)
	}
	if err := b.Save(ctx, "conv1", model.RoleAssistant, "hi there", "alice"); err != nil {
		t.Fatalf("Save assistant: %v", err)
	}

	msgs, err := b.Load(ctx, "conv1", "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message mismatch: %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "hi there" {
		t.Errorf("second message mismatch: %+v", msgs[1])
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Error("messages should have distinct generated ids")
	}
}

func TestSaveOwnershipCheck(t *testing.T) {
	b := openTestBridge(t)
	ctx := context.Background()

	if err := b.Save(ctx, "conv1", model.RoleUser, "mine", "alice"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := b.Save(ctx, "conv1", model.RoleUser, "theirs", "mallory")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	// The unauthorized write must not have landed.
	msgs, _ := b.Load(ctx, "conv1", "alice")
	if len(msgs) != 1 {
		t.Errorf("unauthorized save mutated history: %d messages", len(msgs))
	}
}

func TestLoadOwnershipCheck(t *testing.T) {
	b := openTestBridge(t)
	ctx := context.Background()

	b.Save(ctx, "conv1", model.RoleUser, "secret", "alice")

	if _, err := b.Load(ctx, "conv1", "mallory"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUnauthenticated(t *testing.T) {
	b := openTestBridge(t)
	ctx := context.Background()

	if err := b.Save(ctx, "conv1", model.RoleUser, "x", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Save without actor: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := b.Load(ctx, "conv1", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Load without actor: expected ErrUnauthenticated, got %v", err)
	}
}

func TestLoadMissingConversation(t *testing.T) {
	b := openTestBridge(t)
	msgs, err := b.Load(context.Background(), "nope", "alice")
	if err != nil {
		t.Fatalf("missing conversation should load as empty: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d messages", len(msgs))
	}
}

func TestSaveInvalidRole(t *testing.T) {
	b := openTestBridge(t)
	err := b.Save(context.Background(), "conv1", model.Role("tool"), "x", "alice")
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("expected ErrUnknown for invalid role, got %v", err)
	}
}
