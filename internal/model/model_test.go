// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	before := time.Now()
	msg := NewMessage(RoleUser, "hello")
	after := time.Now()

	if msg.ID == "" {
		t.Error("expected generated ID")
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("expected msg_ prefix, got %q", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Errorf("expected user role, got %q", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("expected content 'hello', got %q", msg.Content)
	}
	if msg.CreatedAt.Before(before) || msg.CreatedAt.After(after) {
		t.Error("CreatedAt not captured at creation")
	}
	if msg.HasError {
		t.Error("new message should not have the error flag set")
	}
}

func TestNewAssistantMessageIsEmpty(t *testing.T) {
	msg := NewAssistantMessage()
	if msg.Role != RoleAssistant {
		t.Errorf("expected assistant role, got %q", msg.Role)
	}
	if !msg.IsEmpty() {
		t.Error("new assistant message should be empty")
	}
}

func TestGenerateIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestRoleDisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Assistant"},
		{RoleSystem, "System"},
		{Role("other"), "other"},
	}
	for _, tt := range tests {
		if got := tt.role.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleUser.Valid() || !RoleAssistant.Valid() || !RoleSystem.Valid() {
		t.Error("known roles should be valid")
	}
	if Role("tool").Valid() {
		t.Error("unknown role should not be valid")
	}
}

func TestPreview(t *testing.T) {
	msg := NewUserMessage("this is a fairly long message body")
	if got := msg.Preview(10); got != "this is..." {
		t.Errorf("Preview(10) = %q", got)
	}
	short := NewUserMessage("hi")
	if got := short.Preview(10); got != "hi" {
		t.Errorf("Preview on short message = %q", got)
	}
}
