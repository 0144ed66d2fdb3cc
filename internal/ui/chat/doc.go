// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat view component for the relaychat TUI.

The view is a thin Bubble Tea front end over the exchange engine. It
owns no conversation state of its own: the transcript lives in the
message store and arrives as immutable snapshots, and engine state
transitions drive the status bar and error banner. Key presses map to
engine calls (Send, Stop, Regenerate) that run as background commands.

# Architecture

Engine callbacks fire on the exchange goroutine, not the Bubble Tea
loop. Two mailboxes (messages.go) bridge the gap with latest-wins
coalescing: however fast chunks arrive, the view renders at most one
frame per snapshot it actually picks up. A pair of long-lived wait
commands pump the mailboxes back into Update.

# Files

  - model.go    - Bubble Tea model, Update, exchange commands
  - view.go     - rendering: transcript, input, status bar, overlays
  - messages.go - message types and engine-to-TUI mailboxes
  - keys.go     - key bindings
*/
package chat
