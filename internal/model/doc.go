// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A Message is the unit of a chat transcript: an ID, a role (user,
// assistant, system), content, a creation timestamp, and an error flag
// set when the exchange that produced or followed the message failed.
package model
