// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive plain-terminal chat for relaychat.
//
// Used when stdout is not suitable for the full TUI (dumb terminals,
// --plain flag). Provides a readline-style REPL over the same exchange
// engine the TUI uses.
//
// Interactive Commands:
//   /help, /h           Show available commands
//   /clear, /c          Clear the conversation
//   /history            Show conversation history
//   /regen, /r          Regenerate the last reply
//   /status, /s         Show session statistics
//   /quit, /q           Exit
//   Ctrl+C              Stop the current response
//   Ctrl+D              Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/relaychat/internal/config"
	"github.com/jeranaias/relaychat/internal/engine"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	summaryHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.Cyan).
				Bold(true)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ReplInput provides input history and line editing for the REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ReplInput struct {
	line        *liner.State
	historyFile string
}

// NewReplInput creates a ReplInput with input history support.
func NewReplInput() *ReplInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.Dir()
	if err != nil {
		configDir = os.TempDir()
	}

	r := &ReplInput{
		line:        line,
		historyFile: filepath.Join(configDir, "input_history"),
	}
	r.LoadHistory()
	return r
}

// LoadHistory loads input history from file.
func (r *ReplInput) LoadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (r *ReplInput) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (r *ReplInput) SaveHistory() {
	if err := config.EnsureDir(); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (r *ReplInput) Close() {
	r.SaveHistory()
	r.line.Close()
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter echoes assistant content to stdout as it arrives.
// It observes store snapshots and prints only the growth of the most
// recent assistant message, so every chunk appears immediately.
type streamPrinter struct {
	mu      sync.Mutex
	enabled bool
	msgID   string
	printed int
}

func (p *streamPrinter) observe(snap []model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || len(snap) == 0 {
		return
	}
	last := snap[len(snap)-1]
	if last.Role != model.RoleAssistant {
		return
	}
	if last.ID != p.msgID {
		p.msgID = last.ID
		p.printed = 0
	}
	if len(last.Content) > p.printed {
		fmt.Print(last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func (p *streamPrinter) setEnabled(on bool) {
	p.mu.Lock()
	p.enabled = on
	p.msgID = ""
	p.printed = 0
	p.mu.Unlock()
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds the state for an interactive REPL session.
type Session struct {
	Engine    *engine.Engine
	Config    *config.Config
	StartTime time.Time

	// Tracking
	Exchanges int
	Failed    int

	input    *ReplInput
	printer  *streamPrinter
	renderer *glamour.TermRenderer // nil = stream raw text
}

// NewSession creates a REPL session over the given engine.
func NewSession(eng *engine.Engine, cfg *config.Config) *Session {
	s := &Session{
		Engine:    eng,
		Config:    cfg,
		StartTime: time.Now(),
		input:     NewReplInput(),
		printer:   &streamPrinter{},
	}

	// Markdown rendering only makes sense on a TTY, and it replaces
	// incremental echo: content is collected and rendered once the
	// exchange completes.
	if cfg.UI.Markdown && IsStdoutTTY() {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-2),
		); err == nil {
			s.renderer = r
		}
	}

	eng.Store().Subscribe(s.printer.observe)
	return s
}

// =============================================================================
// REPL LOOP
// =============================================================================

// Run starts the interactive REPL. Blocks until the user exits.
func Run(eng *engine.Engine, cfg *config.Config) error {
	session := NewSession(eng, cfg)
	defer session.input.Close()

	printWelcome(session)

	// Ctrl+C during an exchange stops the stream rather than killing
	// the process; at the prompt, liner turns it into ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			eng.Stop()
		}
	}()

	for {
		input, err := session.input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed terminal.
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, liner.ErrNotTerminalOutput) {
				fmt.Println()
			}
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		session.runExchange(func(ctx context.Context) error {
			return eng.Send(ctx, input)
		})
	}
}

// runExchange executes one exchange and reports its outcome.
func (s *Session) runExchange(run func(context.Context) error) {
	fmt.Println()
	start := time.Now()

	// Incremental echo only when no markdown renderer collects the
	// reply for a single formatted print at the end.
	s.printer.setEnabled(s.renderer == nil)

	err := run(context.Background())
	s.printer.setEnabled(false)

	switch {
	case err == nil:
		s.Exchanges++
		if s.renderer != nil {
			if last, ok := s.Engine.Store().LastByRole(model.RoleAssistant); ok {
				if rendered, rerr := s.renderer.Render(last.Content); rerr == nil {
					fmt.Print(rendered)
				} else {
					fmt.Println(last.Content)
				}
			}
		} else {
			fmt.Println()
		}

	default:
		s.Failed++
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("[Invalid]"), verr.Reason)
			return
		}
		if errors.Is(err, engine.ErrNoPriorMessage) {
			fmt.Fprintln(os.Stderr, warningStyle.Render("[Nothing to regenerate yet]"))
			return
		}
		fmt.Fprintf(os.Stderr, "\n%s %v\n", errorStyle.Render("[Failed]"), err)
		return
	}

	if warn := s.Engine.LastWarning(); warn != "" {
		fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("[Warning]"), warn)
	}

	fmt.Fprintf(os.Stderr, "%s %s\n\n",
		infoStyle.Render("[Done]"),
		time.Since(start).Round(time.Millisecond))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (keepGoing, error) where keepGoing=false means exit.
func handleSlashCommand(cmd string, session *Session) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	switch strings.ToLower(parts[0]) {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/clear", "/c":
		session.Engine.Store().ReplaceAll(nil)
		fmt.Println(commandStyle.Render("[Conversation cleared]"))
		return true, nil

	case "/regen", "/r":
		session.runExchange(session.Engine.Regenerate)
		return true, nil

	case "/history":
		printHistory(session)
		return true, nil

	case "/status", "/s":
		printStatus(session)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", parts[0])
	}
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(session *Session) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("relaychat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Endpoint:"),
		commandStyle.Render(session.Config.Endpoint.URL))
	if session.Config.History.Enabled {
		fmt.Printf("%s %s\n",
			infoStyle.Render("History:"),
			commandStyle.Render("enabled"))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("History:"),
			warningStyle.Render("disabled"))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/clear, /c", "Clear the conversation"},
		{"/regen, /r", "Regenerate the last reply"},
		{"/history", "Show conversation history"},
		{"/status, /s", "Show session statistics"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C stops the current response, Ctrl+D exits"))
	fmt.Println()
}

// printHistory prints the conversation transcript.
func printHistory(session *Session) {
	snap := session.Engine.Store().Snapshot()
	if len(snap) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Conversation History"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, msg := range snap {
		role := msg.Role.DisplayName()
		switch msg.Role {
		case model.RoleUser:
			role = lipgloss.NewStyle().Foreground(styles.Cyan).Render(role)
		case model.RoleAssistant:
			role = lipgloss.NewStyle().Foreground(styles.Purple).Render(role)
		default:
			role = lipgloss.NewStyle().Foreground(styles.Amber).Render(role)
		}

		// Rune-based truncation for Unicode safety.
		content := msg.Content
		runes := []rune(content)
		if len(runes) > 100 {
			content = string(runes[:100]) + "..."
		}
		content = strings.ReplaceAll(content, "\n", " ")

		flag := ""
		if msg.HasError {
			flag = " " + errorStyle.Render("[failed]")
		}
		fmt.Printf("  %d. %s%s: %s\n", i+1, role, flag, content)
	}

	fmt.Println()
}

// printStatus prints session statistics.
func printStatus(session *Session) {
	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Endpoint:"),
		commandStyle.Render(session.Config.Endpoint.URL))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Conversation:"),
		session.Engine.ConversationID())
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	fmt.Printf("  %s %d messages\n",
		infoStyle.Render("Transcript:"),
		session.Engine.Store().Len())
	fmt.Printf("  %s %d completed, %d failed\n",
		infoStyle.Render("Exchanges:"),
		session.Exchanges,
		session.Failed)

	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(session *Session) {
	if session.Exchanges == 0 && session.Failed == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d completed, %d failed\n",
		infoStyle.Render("Exchanges:"),
		session.Exchanges,
		session.Failed)
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
