// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/relaychat/internal/engine"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/store"
	"github.com/jeranaias/relaychat/internal/ui/styles"
	"github.com/jeranaias/relaychat/internal/util"
)

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Engine and transcript
	engine *engine.Engine
	msgs   []model.Message
	state  engine.State
	detail string // last error or warning text from the engine

	// Mailboxes bridging engine callbacks onto the Bubble Tea loop
	snapshots *snapshotMailbox
	states    *stateMailbox

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Key bindings
	keyMap KeyMap

	// Markdown rendering (nil = plain text)
	renderer *glamour.TermRenderer
	markdown bool

	// Input limits
	maxMessageLen int

	// Transient status line text
	statusMsg     string
	exchangeStart time.Time

	// Help overlay
	showHelp bool

	quitting bool
}

// Options configures the chat view.
type Options struct {
	// Markdown enables glamour rendering of assistant replies
	Markdown bool
	// MaxMessageLen mirrors the engine's validation limit for the
	// character counter (0 = no counter)
	MaxMessageLen int
}

// New creates a new chat model wired to the given engine.
// The engine's store subscription is registered here; the returned
// model's Init must run before any exchange starts so no snapshot is
// missed.
func New(eng *engine.Engine, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message..."
	ti.CharLimit = opts.MaxMessageLen
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 30,
	}
	sp.Style = theme.Spinner

	snapshots := newSnapshotMailbox()
	states := newStateMailbox()
	eng.Store().Subscribe(func(snap []model.Message) {
		snapshots.put(snap)
	})
	eng.SubscribeState(func(state engine.State, detail string) {
		states.put(state, detail)
	})

	return Model{
		theme:         theme,
		engine:        eng,
		msgs:          eng.Store().Snapshot(),
		state:         eng.State(),
		snapshots:     snapshots,
		states:        states,
		viewport:      vp,
		input:         ti,
		spinner:       sp,
		keyMap:        DefaultKeyMap(),
		markdown:      opts.Markdown,
		maxMessageLen: opts.MaxMessageLen,
	}
}

// Init starts the subscription pumps and cursor blink.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		waitForSnapshot(m.snapshots),
		waitForState(m.states),
	)
}

// busy reports whether an exchange is running.
func (m Model) busy() bool {
	return m.state == engine.StateSending || m.state == engine.StateStreaming
}

// =============================================================================
// UPDATE
// =============================================================================

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - chromeHeight
		m.input.Width = msg.Width - 4
		m.rebuildRenderer()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SnapshotMsg:
		m.msgs = msg.Messages
		atBottom := m.viewport.AtBottom()
		m.refreshViewport()
		if atBottom {
			m.viewport.GotoBottom()
		}
		return m, waitForSnapshot(m.snapshots)

	case EngineStateMsg:
		prev := m.state
		m.state = msg.State
		m.detail = msg.Detail
		if msg.State == engine.StateSending && prev != engine.StateSending {
			m.exchangeStart = time.Now()
		}
		if msg.State == engine.StateIdle {
			// Force a final re-render so markdown replaces the raw
			// streaming text.
			m.refreshViewport()
			m.viewport.GotoBottom()
			if prev == engine.StateStreaming && !m.exchangeStart.IsZero() {
				m.statusMsg = m.replyStats()
			}
		}
		return m, waitForState(m.states)

	case ExchangeDoneMsg:
		if msg.Err != nil {
			m.statusMsg = exchangeStatus(msg.Err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey processes a key press.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keyMap

	switch {
	case key.Matches(msg, k.Quit):
		m.engine.Stop()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, k.Stop):
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		if m.busy() {
			m.engine.Stop()
			m.statusMsg = "stopping..."
		} else {
			m.statusMsg = ""
		}
		return m, nil

	case key.Matches(msg, k.Submit):
		content := m.input.Value()
		if content == "" {
			return m, nil
		}
		m.input.Reset()
		m.statusMsg = ""
		return m, m.sendCmd(content)

	case key.Matches(msg, k.Regenerate):
		m.statusMsg = ""
		return m, m.regenerateCmd()

	case key.Matches(msg, k.Clear):
		if m.busy() {
			m.statusMsg = "cannot clear during an exchange"
			return m, nil
		}
		m.engine.Store().ReplaceAll(nil)
		m.statusMsg = "conversation cleared"
		return m, nil

	case key.Matches(msg, k.Up), key.Matches(msg, k.Down),
		key.Matches(msg, k.PageUp), key.Matches(msg, k.PageDown),
		key.Matches(msg, k.Home), key.Matches(msg, k.End):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// EXCHANGE COMMANDS
// =============================================================================

// sendCmd runs a full exchange in the background. The transcript and
// state updates flow in through the mailboxes; the returned message
// only carries call-level rejections.
func (m Model) sendCmd(content string) tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return ExchangeDoneMsg{Err: eng.Send(context.Background(), content)}
	}
}

func (m Model) regenerateCmd() tea.Cmd {
	eng := m.engine
	return func() tea.Msg {
		return ExchangeDoneMsg{Err: eng.Regenerate(context.Background())}
	}
}

// exchangeStatus maps a call-level rejection to a status line.
// Transport failures already surface through the engine state
// subscription and don't need a second message here.
func exchangeStatus(err error) string {
	var verr *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrBusy):
		return "an exchange is already in progress"
	case errors.Is(err, engine.ErrNoPriorMessage):
		return "nothing to regenerate yet"
	case errors.Is(err, store.ErrNotFound):
		return "message no longer exists"
	case errors.As(err, &verr):
		return verr.Reason
	}
	var exErr *engine.ExchangeError
	if errors.As(err, &exErr) {
		return "" // shown via the failed-state banner
	}
	return err.Error()
}

// replyStats summarizes the exchange just finished for the status bar.
func (m Model) replyStats() string {
	elapsed := time.Since(m.exchangeStart).Round(100 * time.Millisecond)
	if last, ok := m.engine.Store().LastByRole(model.RoleAssistant); ok {
		return fmt.Sprintf("reply in %s · %d chars", elapsed, util.RuneLen(last.Content))
	}
	return fmt.Sprintf("done in %s", elapsed)
}

// rebuildRenderer recreates the markdown renderer for the current
// width. Glamour wraps at render time, so the renderer must track
// terminal resizes.
func (m *Model) rebuildRenderer() {
	if !m.markdown {
		return
	}
	wrap := m.width - 8
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.renderer = nil
		return
	}
	m.renderer = r
}
