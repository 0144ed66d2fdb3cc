// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package persist provides conversation persistence behind the Bridge
// interface the chat engine talks to.
//
// The engine treats every persistence failure as non-fatal to the
// exchange: a failed save surfaces as a warning, never as an exchange
// failure. The bundled implementation stores history in a local SQLite
// database with a per-actor ownership check on every write and read.
package persist
