// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry provides the backoff decision function for failed
// exchanges.
//
// The policy is pure - no I/O, no timers - so it is independently
// testable; the engine owns the actual waiting.
package retry

import (
	"time"

	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// Policy decides whether a failed attempt should be retried and how
// long to wait before the next attempt.
type Policy struct {
	// BaseDelay is the delay before the first retry (default: 1s).
	BaseDelay time.Duration

	// MaxDelay caps the exponential backoff (default: 4s).
	MaxDelay time.Duration

	// MaxRetries is the number of retries after the initial attempt
	// (default: 3).
	MaxRetries int
}

// DefaultPolicy returns the default retry policy: 1s base delay doubling
// per attempt, capped at 4s, at most 3 retries.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:  1 * time.Second,
		MaxDelay:   4 * time.Second,
		MaxRetries: 3,
	}
}

// Decide returns whether to retry after the given zero-based attempt
// failed with the given error class, and the delay to wait first.
//
// Client errors are never retried: the payload itself is presumed
// invalid and retrying will not help. Everything else retries until
// MaxRetries is exhausted with delay min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Decide(attempt int, class transport.ErrorClass) (retry bool, delay time.Duration) {
	if class == transport.ClassClient {
		return false, 0
	}
	if attempt >= p.MaxRetries {
		return false, 0
	}

	delay = p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return true, delay
}
