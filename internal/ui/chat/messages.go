// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the Bubble Tea messages the view reacts to and the
// mailboxes that carry engine callbacks onto the Bubble Tea loop.
// Store and state subscriptions fire synchronously on the engine
// goroutine; mailboxes decouple them from rendering with latest-wins
// coalescing so a fast stream cannot flood the update loop.
package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relaychat/internal/engine"
	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// SnapshotMsg carries a fresh transcript snapshot into the view.
type SnapshotMsg struct {
	Messages []model.Message
}

// EngineStateMsg reports an engine state transition.
type EngineStateMsg struct {
	State  engine.State
	Detail string
}

// ExchangeDoneMsg reports the outcome of a Send/Regenerate/Retry call.
type ExchangeDoneMsg struct {
	Err error
}

// =============================================================================
// SNAPSHOT MAILBOX
// =============================================================================

// snapshotMailbox holds the most recent transcript snapshot.
//
// The store notifies once per mutation; during streaming that can be
// hundreds of notifications per second. Rendering only ever needs the
// newest snapshot, so intermediate ones are overwritten rather than
// queued. PERFORMANCE: keeps the Bubble Tea loop at its own frame rate
// regardless of chunk arrival rate.
type snapshotMailbox struct {
	mu     sync.Mutex
	latest []model.Message
	signal chan struct{}
}

func newSnapshotMailbox() *snapshotMailbox {
	return &snapshotMailbox{signal: make(chan struct{}, 1)}
}

// put stores a snapshot and wakes the awaiting command, if any.
// Called from the engine goroutine.
func (mb *snapshotMailbox) put(snap []model.Message) {
	mb.mu.Lock()
	mb.latest = snap
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default: // a wakeup is already pending
	}
}

// await blocks until a snapshot arrives and returns the newest one.
func (mb *snapshotMailbox) await() []model.Message {
	<-mb.signal
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.latest
}

// =============================================================================
// STATE MAILBOX
// =============================================================================

// stateMailbox coalesces engine state transitions, latest-wins.
type stateMailbox struct {
	mu     sync.Mutex
	state  engine.State
	detail string
	signal chan struct{}
}

func newStateMailbox() *stateMailbox {
	return &stateMailbox{signal: make(chan struct{}, 1)}
}

func (mb *stateMailbox) put(state engine.State, detail string) {
	mb.mu.Lock()
	mb.state = state
	mb.detail = detail
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

func (mb *stateMailbox) await() (engine.State, string) {
	<-mb.signal
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.state, mb.detail
}

// =============================================================================
// WAIT COMMANDS
// =============================================================================

// waitForSnapshot blocks until the store publishes a new snapshot.
// Update re-issues it after handling each SnapshotMsg.
func waitForSnapshot(mb *snapshotMailbox) tea.Cmd {
	return func() tea.Msg {
		return SnapshotMsg{Messages: mb.await()}
	}
}

// waitForState blocks until the engine changes state.
func waitForState(mb *stateMailbox) tea.Cmd {
	return func() tea.Msg {
		state, detail := mb.await()
		return EngineStateMsg{State: state, Detail: detail}
	}
}
