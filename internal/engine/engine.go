// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine provides the chat exchange orchestrator.
package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/persist"
	"github.com/jeranaias/relaychat/internal/retry"
	"github.com/jeranaias/relaychat/internal/store"
	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// STATE
// =============================================================================

// State is the engine's externally visible exchange state.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// StateSubscriber receives the engine state and the last human-readable
// error string after every state change.
type StateSubscriber func(state State, lastErr string)

// appended to a streaming assistant message when the user stops the
// exchange; content is never truncated on cancellation.
const cancellationMarker = "\n\n[stopped]"

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds engine configuration.
type Config struct {
	// ConversationID scopes persisted history. Opaque; passed through
	// to the persistence bridge and the chat endpoint as the session id.
	ConversationID string

	// Actor identifies who owns the conversation, for the persistence
	// bridge's ownership check.
	Actor string

	// MaxMessageLen is the maximum user message length in characters
	// (default: 5000).
	MaxMessageLen int

	// Policy decides retries and backoff (default: retry.DefaultPolicy).
	Policy retry.Policy

	// Limiter optionally throttles outbound sends. Nil disables
	// throttling.
	Limiter *rate.Limiter
}

// DefaultMaxMessageLen is the default user message length cap.
const DefaultMaxMessageLen = 5000

// =============================================================================
// TRANSPORT INTERFACE
// =============================================================================

// Transport opens one streaming exchange. *transport.Client satisfies
// it; tests substitute stubs.
type Transport interface {
	Open(ctx context.Context, payload transport.Payload, callback transport.StreamCallback) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine composes the stream transport, retry policy, message store,
// and persistence bridge into the chat operations: Send, Regenerate,
// Retry, Stop, Append.
//
// Exchange state machine: Idle -> Sending -> Streaming -> terminal
// (completed, failed, or cancelled) -> Idle/Failed. The engine enforces
// at most one in-flight exchange: Send, Regenerate, and Retry return
// ErrBusy while an exchange is Sending or Streaming rather than
// cancelling it.
//
// Send, Regenerate, and Retry block until the exchange reaches a
// terminal state, so callers typically run them on their own goroutine
// and observe progress through the store and state subscriptions.
type Engine struct {
	store     *store.MessageStore
	transport Transport
	bridge    persist.Bridge // may be nil (persistence disabled)
	policy    retry.Policy
	limiter   *rate.Limiter
	clock     Clock
	cfg       Config

	cancelMgr *cancelManager

	mu          sync.Mutex
	state       State
	lastErr     string
	lastWarn    string
	inFlight    bool
	generation  int // bumped per exchange; gates late chunks and stale timers
	streamingID string

	stateSubs map[int]StateSubscriber
	nextSub   int
}

// New creates an engine. bridge may be nil to disable persistence.
func New(msgStore *store.MessageStore, tr Transport, bridge persist.Bridge, cfg Config) *Engine {
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = DefaultMaxMessageLen
	}
	if cfg.Policy == (retry.Policy{}) {
		cfg.Policy = retry.DefaultPolicy()
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = model.GenerateConversationID()
	}
	return &Engine{
		store:     msgStore,
		transport: tr,
		bridge:    bridge,
		policy:    cfg.Policy,
		limiter:   cfg.Limiter,
		clock:     realClock{},
		cfg:       cfg,
		cancelMgr: newCancelManager(),
		stateSubs: make(map[int]StateSubscriber),
	}
}

// Store returns the message store backing this engine.
func (e *Engine) Store() *store.MessageStore {
	return e.store
}

// ConversationID returns the conversation this engine persists into.
func (e *Engine) ConversationID() string {
	return e.cfg.ConversationID
}

// State returns the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the last terminal-failure message shown to the
// user, or "" if the last exchange did not fail.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// LastWarning returns the last non-fatal warning (persistence
// failures), or "".
func (e *Engine) LastWarning() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastWarn
}

// SubscribeState registers a state subscriber and returns an
// unsubscribe function.
func (e *Engine) SubscribeState(fn StateSubscriber) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.stateSubs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.stateSubs, id)
		e.mu.Unlock()
	}
}

// =============================================================================
// PUBLIC OPERATIONS
// =============================================================================

// Send validates content, appends a user message, and runs a full
// exchange. It returns after the exchange reaches a terminal state:
// nil on completion or cancellation, ErrBusy, a *ValidationError, or a
// *ExchangeError once retries are exhausted.
func (e *Engine) Send(ctx context.Context, content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &ValidationError{Reason: "message is empty"}
	}
	if len([]rune(trimmed)) > e.cfg.MaxMessageLen {
		return &ValidationError{Reason: "message is too long"}
	}

	gen, err := e.begin()
	if err != nil {
		return err
	}

	user := model.NewUserMessage(trimmed)
	if err := e.store.Append(user); err != nil {
		e.abort()
		return err
	}

	return e.exchange(ctx, gen, user.ID, trimmed)
}

// Regenerate discards the most recent assistant reply (if the last
// message is one) and re-runs the exchange with the most recent user
// message's content, without appending a new user message.
func (e *Engine) Regenerate(ctx context.Context) error {
	gen, err := e.begin()
	if err != nil {
		return err
	}

	lastUser, ok := e.store.LastByRole(model.RoleUser)
	if !ok {
		e.abort()
		return ErrNoPriorMessage
	}
	if last, ok := e.store.Last(); ok && last.Role == model.RoleAssistant {
		e.store.RemoveLast()
	}

	return e.exchange(ctx, gen, lastUser.ID, lastUser.Content)
}

// Retry clears the error flag on an existing user message and re-runs
// the exchange with its content, reusing the message rather than
// creating a new one. The attempt counter starts over.
func (e *Engine) Retry(ctx context.Context, messageID string) error {
	msg, err := e.store.Get(messageID)
	if err != nil || msg.Role != model.RoleUser {
		return store.ErrNotFound
	}

	gen, err := e.begin()
	if err != nil {
		return err
	}

	e.store.SetErrorFlag(messageID, false)
	return e.exchange(ctx, gen, messageID, msg.Content)
}

// Stop cancels the in-flight exchange, if any. It is idempotent: a
// Stop with nothing in flight is a no-op, not an error.
func (e *Engine) Stop() {
	e.cancelMgr.cancel()
}

// Append inserts a caller-constructed message (typically a system
// message) directly into the store, bypassing the exchange procedure.
// Engine state is unaffected.
func (e *Engine) Append(msg model.Message) error {
	return e.store.Append(msg)
}

// =============================================================================
// EXCHANGE PROCEDURE
// =============================================================================

// begin claims the single in-flight slot and returns the new exchange
// generation. Fails with ErrBusy if an exchange is already running.
func (e *Engine) begin() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return 0, ErrBusy
	}
	e.inFlight = true
	e.generation++
	return e.generation, nil
}

// abort releases the in-flight slot without running an exchange.
func (e *Engine) abort() {
	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
}

// exchange runs one full send-and-receive cycle, including retries,
// ending in a terminal state. gen gates every chunk application and
// backoff timer so work from a superseded or cancelled exchange is
// a no-op.
func (e *Engine) exchange(ctx context.Context, gen int, userID, content string) error {
	exCtx, cancel := context.WithCancel(ctx)
	e.cancelMgr.set(cancel)
	defer func() {
		e.cancelMgr.clear()
		e.abort()
	}()

	e.setState(StateSending, "")

	if e.limiter != nil {
		// Suspension point: observes cancellation like every other wait.
		if err := e.limiter.Wait(exCtx); err != nil {
			return e.concludeCancelled()
		}
	}

	payload := transport.NewPayload(content, e.cfg.ConversationID)

	for attempt := 0; ; attempt++ {
		streamErr := e.transport.Open(exCtx, payload, func(chunk transport.Chunk) {
			e.applyChunk(exCtx, gen, chunk)
		})

		if exCtx.Err() != nil || errors.Is(streamErr, context.Canceled) {
			return e.concludeCancelled()
		}

		if streamErr == nil {
			return e.concludeCompleted(userID)
		}

		// The failure leaves the user message flagged until a later
		// attempt or explicit retry succeeds. Partial streamed content
		// stays visible; it is never rolled back.
		e.store.SetErrorFlag(userID, true)

		class := transport.ClassOf(streamErr)
		doRetry, delay := e.policy.Decide(attempt, class)
		if !doRetry {
			return e.concludeFailed(class, streamErr)
		}

		// The next attempt runs the full procedure again: its first
		// chunk allocates a fresh assistant message. The failed
		// attempt's partial message stays in the transcript; it is
		// never appended onto.
		e.mu.Lock()
		e.streamingID = ""
		e.mu.Unlock()

		log.Printf("engine: exchange attempt %d failed (%s), retrying in %s", attempt, class, delay)
		select {
		case <-exCtx.Done():
			return e.concludeCancelled()
		case <-e.clock.After(delay):
		}
	}
}

// applyChunk applies one decoded chunk to the streaming assistant
// message. A chunk arriving after cancellation or from a superseded
// exchange is a no-op.
func (e *Engine) applyChunk(exCtx context.Context, gen int, chunk transport.Chunk) {
	if exCtx.Err() != nil {
		return
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}

	id := e.streamingID
	if id == "" {
		// Nothing streamed yet. A bare done frame concludes without
		// ever creating an assistant message.
		if chunk.Text == "" {
			e.mu.Unlock()
			return
		}
		m := model.NewAssistantMessage()
		e.streamingID = m.ID
		id = m.ID
		e.state = StateStreaming
		subs := e.stateSubsLocked()
		e.mu.Unlock()

		e.store.Append(m)
		notifyState(subs, StateStreaming, "")
	} else {
		e.mu.Unlock()
	}

	if chunk.Text != "" {
		// Incremental visibility: each delta notifies store subscribers
		// immediately, not batched until the stream ends.
		e.store.AppendContent(id, chunk.Text)
	}
}

// =============================================================================
// TERMINAL OUTCOMES
// =============================================================================

// concludeCompleted finishes a successful exchange: the user message's
// error flag clears and the completed reply is persisted best-effort.
func (e *Engine) concludeCompleted(userID string) error {
	e.mu.Lock()
	assistantID := e.streamingID
	e.streamingID = ""
	e.mu.Unlock()

	e.store.SetErrorFlag(userID, false)
	e.persistExchange(userID, assistantID)
	e.setState(StateIdle, "")
	return nil
}

// concludeCancelled finishes a stopped exchange. Cancellation is a
// distinct outcome, not a failure: the user message is not flagged and
// the caller receives nil. A streaming assistant message keeps its
// partial content plus a cancellation marker.
func (e *Engine) concludeCancelled() error {
	e.mu.Lock()
	assistantID := e.streamingID
	e.streamingID = ""
	e.mu.Unlock()

	if assistantID != "" {
		e.store.AppendContent(assistantID, cancellationMarker)
	}
	e.setState(StateIdle, "")
	return nil
}

// concludeFailed finishes an exchange whose retries are exhausted. The
// user message stays flagged so the UI can offer a manual retry.
func (e *Engine) concludeFailed(class transport.ErrorClass, cause error) error {
	msg := humanMessage(class)

	e.mu.Lock()
	e.streamingID = ""
	e.mu.Unlock()

	e.setState(StateFailed, msg)
	return &ExchangeError{Class: class, Message: msg, Cause: cause}
}

// persistExchange saves the completed user/assistant pair best-effort.
// Every failure is non-fatal: logged and surfaced as a warning only.
func (e *Engine) persistExchange(userID, assistantID string) {
	if e.bridge == nil {
		return
	}

	// Persistence must not block or be torn down by exchange
	// cancellation; it gets its own context.
	ctx := context.Background()

	var warn string
	if user, err := e.store.Get(userID); err == nil {
		if err := e.bridge.Save(ctx, e.cfg.ConversationID, model.RoleUser, user.Content, e.cfg.Actor); err != nil {
			log.Printf("engine: failed to persist user message: %v", err)
			warn = persistWarning(err)
		}
	}
	if assistantID != "" {
		if assistant, err := e.store.Get(assistantID); err == nil {
			if err := e.bridge.Save(ctx, e.cfg.ConversationID, model.RoleAssistant, assistant.Content, e.cfg.Actor); err != nil {
				log.Printf("engine: failed to persist assistant message: %v", err)
				warn = persistWarning(err)
			}
		}
	}

	if warn != "" {
		e.mu.Lock()
		e.lastWarn = warn
		e.mu.Unlock()
	}
}

// persistWarning maps a bridge error to the lower-severity warning
// shown alongside (not instead of) the completed exchange.
func persistWarning(err error) string {
	switch {
	case errors.Is(err, persist.ErrUnauthenticated):
		return "Reply received, but history was not saved: not signed in."
	case errors.Is(err, persist.ErrUnauthorized):
		return "Reply received, but history was not saved: conversation belongs to another user."
	default:
		return "Reply received, but history could not be saved."
	}
}

// =============================================================================
// STATE NOTIFICATION
// =============================================================================

// setState updates state and lastErr and notifies state subscribers.
func (e *Engine) setState(s State, lastErr string) {
	e.mu.Lock()
	e.state = s
	e.lastErr = lastErr
	subs := e.stateSubsLocked()
	e.mu.Unlock()

	notifyState(subs, s, lastErr)
}

// stateSubsLocked copies the subscriber set. Caller must hold the lock.
func (e *Engine) stateSubsLocked() []StateSubscriber {
	subs := make([]StateSubscriber, 0, len(e.stateSubs))
	for _, fn := range e.stateSubs {
		subs = append(subs, fn)
	}
	return subs
}

func notifyState(subs []StateSubscriber, s State, lastErr string) {
	for _, fn := range subs {
		fn(s, lastErr)
	}
}
