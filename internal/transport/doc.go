// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport provides the HTTP streaming client for the chat
// webhook endpoint.
//
// The client POSTs a JSON payload and consumes a newline-delimited JSON
// response body incrementally, yielding one Chunk per decoded frame as
// bytes arrive. Non-success status codes are classified (timeout, rate
// limited, server error, client error) rather than surfaced as raw
// status codes, so callers can make retry decisions without knowing
// HTTP details.
package transport
