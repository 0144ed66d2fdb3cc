// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine provides the chat exchange orchestrator.
package engine

import (
	"errors"

	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Sentinel errors surfaced by engine operations.
var (
	// ErrBusy is returned when Send, Regenerate, or Retry is called
	// while an exchange is already in flight. The engine rejects
	// concurrent exchanges rather than cancelling the prior one.
	ErrBusy = errors.New("an exchange is already in flight")

	// ErrNoPriorMessage is returned by Regenerate when the store holds
	// no user message to re-send.
	ErrNoPriorMessage = errors.New("no prior user message to regenerate")
)

// ValidationError rejects input before any network call. No state is
// mutated; the caller can simply correct the input and resend.
type ValidationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// ExchangeError is the terminal failure of an exchange after retries
// are exhausted. Message is human-readable and classified, never a raw
// status code or stack trace.
type ExchangeError struct {
	Class   transport.ErrorClass
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ExchangeError) Error() string {
	return e.Message
}

// Unwrap returns the transport failure that exhausted the retries.
func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// humanMessage maps an error class to the message shown to the user.
func humanMessage(class transport.ErrorClass) string {
	switch class {
	case transport.ClassTimeout:
		return "The assistant took too long to respond. Please try again."
	case transport.ClassRateLimited:
		return "The assistant is receiving too many requests. Please wait a moment and try again."
	case transport.ClassServer:
		return "The assistant service ran into a problem. Please try again."
	case transport.ClassClient:
		return "Your message could not be processed. Please revise it and try again."
	default:
		return "Could not reach the assistant. Check your connection and try again."
	}
}
