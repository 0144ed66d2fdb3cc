// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP streaming client for the chat
// webhook endpoint.
package transport

import (
	"errors"
	"net/http"
)

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// ErrorClass categorizes transport failures for retry decisions.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTimeout
	ClassRateLimited
	ClassServer
	ClassClient
)

// String returns the string representation of the error class.
func (c ErrorClass) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassRateLimited:
		return "rate-limited"
	case ClassServer:
		return "server-error"
	case ClassClient:
		return "client-error"
	default:
		return "unknown"
	}
}

// Error represents a classified failure from the chat endpoint.
type Error struct {
	Class   ErrorClass
	Status  int // HTTP status code, 0 for network-level failures
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ClassOf extracts the ErrorClass from an error, or ClassUnknown if the
// error is not a transport Error.
func ClassOf(err error) ErrorClass {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassUnknown
}

// classifyStatus maps an HTTP status code to an error class.
// 408/504 are timeouts, 429 is backpressure, other 5xx are server
// errors, remaining 4xx are client errors (the payload itself is bad).
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ClassTimeout
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status >= 500:
		return ClassServer
	case status >= 400:
		return ClassClient
	default:
		return ClassUnknown
	}
}

// statusMessage returns a short description for a failed status.
func statusMessage(status int) string {
	switch classifyStatus(status) {
	case ClassTimeout:
		return "chat endpoint timed out"
	case ClassRateLimited:
		return "chat endpoint rate limited the request"
	case ClassServer:
		return "chat endpoint returned a server error"
	case ClassClient:
		return "chat endpoint rejected the request"
	default:
		return "chat endpoint returned an unexpected status"
	}
}
