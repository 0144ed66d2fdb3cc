// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/relaychat/internal/engine"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/util"
)

// chromeHeight is the vertical space taken by everything that is not
// the transcript viewport: header, input area, status bar.
const chromeHeight = 6

// =============================================================================
// VIEW
// =============================================================================

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	if m.state == engine.StateFailed && m.detail != "" {
		b.WriteString(m.renderErrorBanner())
		b.WriteString("\n")
	}

	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("relaychat")
	sub := m.theme.HeaderSubtitle.Render(" streaming chat")
	return m.theme.Header.Width(m.width).Render(title + sub)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshViewport re-renders the transcript into the viewport.
func (m *Model) refreshViewport() {
	if m.viewport.Width <= 0 {
		return
	}

	var b strings.Builder
	for i, msg := range m.msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, i == len(m.msgs)-1))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

// renderMessage renders one transcript entry.
func (m Model) renderMessage(msg model.Message, last bool) string {
	label := m.theme.RoleLabel.Render(msg.Role.DisplayName())
	if msg.HasError {
		label += " " + m.theme.ErrorFlag.Render("[failed]")
	}
	stamp := m.theme.ShortcutDesc.Render(msg.CreatedAt.Format("15:04"))

	content := msg.Content
	switch msg.Role {
	case model.RoleAssistant:
		// Markdown rendering is skipped for the in-flight message: a
		// partially streamed document re-rendered per chunk flickers
		// badly. The final re-render on return to idle picks it up.
		streaming := last && m.state == engine.StateStreaming
		if m.renderer != nil && !streaming && content != "" {
			if rendered, err := m.renderer.Render(content); err == nil {
				content = strings.TrimRight(rendered, "\n")
			}
		}
		if streaming {
			content += " " + m.spinner.View()
		}
		return m.theme.AssistantBubble.Width(m.viewport.Width - 4).Render(label + " " + stamp + "\n" + content)

	case model.RoleSystem:
		return m.theme.SystemBubble.Width(m.viewport.Width - 4).Render(content)

	default:
		return m.theme.UserBubble.Width(m.viewport.Width - 8).Render(label + " " + stamp + "\n" + content)
	}
}

// =============================================================================
// INPUT AREA
// =============================================================================

func (m Model) renderInput() string {
	line := m.input.View()

	if m.maxMessageLen > 0 {
		n := util.RuneLen(m.input.Value())
		count := fmt.Sprintf("%d/%d", n, m.maxMessageLen)
		style := m.theme.CharCount
		switch {
		case n >= m.maxMessageLen:
			style = m.theme.CharCountDanger
		case n >= m.maxMessageLen*9/10:
			style = m.theme.CharCountWarning
		}
		pad := m.width - lipgloss.Width(line) - lipgloss.Width(count) - 4
		if pad > 0 {
			line += strings.Repeat(" ", pad) + style.Render(count)
		}
	}

	return m.theme.InputContainer.Width(m.width).Render(line)
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatusBar() string {
	var state string
	switch m.state {
	case engine.StateSending:
		state = m.theme.StatusBusy.Render(m.spinner.View() + " sending")
	case engine.StateStreaming:
		state = m.theme.StatusBusy.Render(m.spinner.View() + " streaming")
	case engine.StateFailed:
		state = m.theme.StatusFailed.Render("failed")
	default:
		state = m.theme.StatusIdle.Render("ready")
	}

	middle := m.statusMsg
	if middle == "" && m.engine.LastWarning() != "" {
		middle = m.theme.WarningStyle.Render(m.engine.LastWarning())
	}

	var hints []string
	for _, binding := range m.keyMap.ShortHelp() {
		h := binding.Help()
		hints = append(hints,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	bar := state + "  " + middle
	pad := m.width - lipgloss.Width(bar) - lipgloss.Width(right) - 2
	if pad > 0 {
		bar += strings.Repeat(" ", pad) + right
	}
	return m.theme.StatusBar.Width(m.width).Render(util.TruncateWidth(bar, m.width))
}

// =============================================================================
// ERROR BANNER
// =============================================================================

func (m Model) renderErrorBanner() string {
	title := m.theme.ErrorTitle.Render("Exchange failed")
	body := m.theme.ErrorMessage.Render(m.detail)
	hint := m.theme.ShortcutDesc.Render("C-r to retry, Enter to send something else")
	return m.theme.ErrorBox.Width(m.width - 4).Render(title + "\n" + body + "\n" + hint)
}

// =============================================================================
// HELP OVERLAY
// =============================================================================

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HelpTitle.Render("Keyboard shortcuts"))
	b.WriteString("\n\n")

	for _, group := range m.keyMap.FullHelp() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				m.theme.ShortcutKey.Render(fmt.Sprintf("%-8s", h.Key)),
				m.theme.ShortcutDesc.Render(h.Desc)))
		}
		b.WriteString("\n")
	}

	box := m.theme.HelpBox.Render(strings.TrimRight(b.String(), "\n"))
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}
