// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine provides the chat exchange orchestrator.
//
// An Engine composes a stream transport, a retry policy, the message
// store, and a persistence bridge into the public chat operations:
// Send, Regenerate, Retry, Stop, and Append. It owns the
// single-in-flight-exchange invariant, the optimistic user message with
// error-flag rollback semantics, cancellable backoff between attempts,
// and best-effort persistence of completed replies.
//
// Construct an Engine per conversation with New; there is no shared
// global state, so multiple independent conversations can run side by
// side.
package engine
