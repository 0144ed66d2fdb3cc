// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persist provides conversation persistence behind the Bridge
// interface the chat engine talks to.
package persist

import (
	"context"

	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// BridgeError represents a classified persistence failure.
// It implements the error interface and can be compared using errors.Is.
type BridgeError struct {
	Message string
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing bridge errors.
func (e *BridgeError) Is(target error) bool {
	t, ok := target.(*BridgeError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrUnauthenticated is returned when no actor identity was supplied.
	ErrUnauthenticated = &BridgeError{Message: "not authenticated"}

	// ErrUnauthorized is returned when the conversation does not belong
	// to the acting identity.
	ErrUnauthorized = &BridgeError{Message: "conversation does not belong to actor"}

	// ErrUnknown wraps failures that fit no other classification.
	ErrUnknown = &BridgeError{Message: "persistence failed"}
)

// =============================================================================
// BRIDGE INTERFACE
// =============================================================================

// Bridge persists completed messages for a conversation. Implementations
// must verify the conversation belongs to the actor before writing.
//
// The engine invokes Save best-effort after a completed exchange;
// failures are surfaced to the user as warnings, never as exchange
// failures.
type Bridge interface {
	// Save appends one message to the conversation's history.
	Save(ctx context.Context, conversationID string, role model.Role, content, actor string) error

	// Load returns the conversation's messages in insertion order.
	Load(ctx context.Context, conversationID, actor string) ([]model.Message, error)
}
