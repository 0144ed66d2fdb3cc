// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the in-memory ordered message list the chat
// engine mutates and the UI renders from.
package store

import (
	"sync"

	"github.com/jeranaias/relaychat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// StoreError represents a message-store error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrDuplicateID is returned when appending a message whose ID
	// already exists. This is a programmer error.
	ErrDuplicateID = &StoreError{Message: "message id already exists"}

	// ErrNotFound is returned when a message ID does not exist.
	ErrNotFound = &StoreError{Message: "message not found"}
)

// =============================================================================
// MESSAGE STORE
// =============================================================================

// Subscriber receives the full snapshot after every mutation.
type Subscriber func(messages []model.Message)

// MessageStore is an insertion-ordered list of messages with id-keyed
// lookup. Every mutation notifies subscribers synchronously with a
// fresh snapshot, in mutation order; no reordering operation exists.
//
// The store is the only mutable state the engine shares with the UI.
// Internal locking makes individual operations safe for concurrent
// callers; ordering across operations is the engine's responsibility
// since it serializes all mutations for an exchange.
type MessageStore struct {
	mu       sync.Mutex
	messages []model.Message
	index    map[string]int // id -> position in messages
	subs     map[int]Subscriber
	nextSub  int
}

// New creates an empty message store.
func New() *MessageStore {
	return &MessageStore{
		index: make(map[string]int),
		subs:  make(map[int]Subscriber),
	}
}

// Append inserts a message at the end. The message ID must not already
// exist; violating this fails with ErrDuplicateID.
func (s *MessageStore) Append(msg model.Message) error {
	s.mu.Lock()
	if _, exists := s.index[msg.ID]; exists {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return nil
}

// UpdateContent replaces the content of an existing message.
func (s *MessageStore) UpdateContent(id, content string) error {
	s.mu.Lock()
	pos, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.messages[pos].Content = content
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return nil
}

// AppendContent concatenates delta onto an existing message's content.
// Used while a response is streaming.
func (s *MessageStore) AppendContent(id, delta string) error {
	s.mu.Lock()
	pos, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.messages[pos].Content += delta
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return nil
}

// SetErrorFlag sets or clears the error flag on an existing message.
func (s *MessageStore) SetErrorFlag(id string, flag bool) error {
	s.mu.Lock()
	pos, exists := s.index[id]
	if !exists {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.messages[pos].HasError = flag
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return nil
}

// ReplaceAll swaps the full message list, e.g. when loading persisted
// history or clearing the transcript.
func (s *MessageStore) ReplaceAll(messages []model.Message) {
	s.mu.Lock()
	s.messages = make([]model.Message, len(messages))
	copy(s.messages, messages)
	s.index = make(map[string]int, len(messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
}

// RemoveLast removes and returns the most recent message. It exists to
// support regeneration, which discards the previous assistant reply
// before re-running the exchange; it is the only deletion the store
// offers.
func (s *MessageStore) RemoveLast() (model.Message, bool) {
	s.mu.Lock()
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return model.Message{}, false
	}
	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	delete(s.index, last.ID)
	snap, subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, snap)
	return last, true
}

// Get returns a copy of the message with the given ID.
func (s *MessageStore) Get(id string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, exists := s.index[id]
	if !exists {
		return model.Message{}, ErrNotFound
	}
	return s.messages[pos], nil
}

// Last returns a copy of the most recent message.
func (s *MessageStore) Last() (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return model.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// LastByRole returns a copy of the most recent message with the given role.
func (s *MessageStore) LastByRole(role model.Role) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i], true
		}
	}
	return model.Message{}, false
}

// Snapshot returns a read-only copy of the messages in insertion order.
func (s *MessageStore) Snapshot() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, _ := s.snapshotLocked()
	return snap
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Subscribe registers a subscriber and returns an unsubscribe function.
// Subscribers are invoked synchronously after each mutation.
func (s *MessageStore) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// snapshotLocked copies the message slice and the current subscriber
// set. Caller must hold the lock.
func (s *MessageStore) snapshotLocked() ([]model.Message, []Subscriber) {
	snap := make([]model.Message, len(s.messages))
	copy(snap, s.messages)
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return snap, subs
}

// notify delivers a snapshot to subscribers outside the store lock so a
// subscriber may read the store re-entrantly.
func notify(subs []Subscriber, snap []model.Message) {
	for _, fn := range subs {
		fn(snap)
	}
}
