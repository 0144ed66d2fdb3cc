// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the in-memory ordered message list the chat
// engine mutates and the UI renders from.
//
// MessageStore is observable: every mutation pushes a fresh snapshot to
// registered subscribers, so the rendering layer is a subscriber rather
// than a collaborator the engine depends on.
package store
