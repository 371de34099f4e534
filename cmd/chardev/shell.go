package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type shellCmd struct{}

func init() {
	subcommandList = append(subcommandList, &shellCmd{})
}

func (*shellCmd) Name() string { return "shell" }

func (*shellCmd) Synopsis() string {
	return "Opens an interactive console attached to a guest process."
}

func (*shellCmd) Usage() string {
	return "chardev [-manifest <file>] shell\n"
}

func (*shellCmd) SetFlags(*flag.FlagSet) {}

func (cmd *shellCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		loggerFrom(ctx).Error("shell needs a terminal; use the script command for non-interactive input")
		return subcommands.ExitFailure
	}
	m := newShellModel(ctx)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	m.shutdown()
	if err != nil {
		loggerFrom(ctx).Error("shell failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type shellEntry struct {
	err  error
	line string
	out  string
}

type shellModel struct {
	ctx     context.Context
	err     error
	sys     *system
	sess    *session
	entries []shellEntry
	recall  []string
	input   textinput.Model
	recallN int
	height  int
	busy    bool
}

func newShellModel(ctx context.Context) *shellModel {
	ti := textinput.New()
	ti.Placeholder = "help"
	ti.Prompt = promptStyle.Render("chardev> ")
	ti.Width = 60
	ti.Focus()
	return &shellModel{ctx: ctx, input: ti}
}

type bootedMsg struct {
	err  error
	sys  *system
	sess *session
}

type execResultMsg struct {
	entry shellEntry
}

func (m *shellModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.boot)
}

func (m *shellModel) boot() tea.Msg {
	sys, err := bootSystem(m.ctx)
	if err != nil {
		return bootedMsg{err: err}
	}
	sess, err := newSession(m.ctx, sys)
	if err != nil {
		sys.Close()
		return bootedMsg{err: err}
	}
	return bootedMsg{sys: sys, sess: sess}
}

func (m *shellModel) shutdown() {
	if m.sess != nil {
		_ = m.sess.Close(m.ctx)
		m.sess = nil
	}
	if m.sys != nil {
		_ = m.sys.Close()
		m.sys = nil
	}
}

func (m *shellModel) run(line string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		out, err := sess.exec(m.ctx, line)
		return execResultMsg{entry: shellEntry{line: line, out: out, err: err}}
	}
}

func (m *shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if m.busy || m.sess == nil || line == "" {
				return m, nil
			}
			if line == "exit" || line == "quit" {
				return m, tea.Quit
			}
			if line == "clear" {
				m.entries = nil
				m.input.Reset()
				return m, nil
			}
			m.recall = append(m.recall, line)
			m.recallN = len(m.recall)
			m.input.Reset()
			m.busy = true
			return m, m.run(line)

		case "up":
			if m.recallN > 0 {
				m.recallN--
				m.input.SetValue(m.recall[m.recallN])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.recallN < len(m.recall)-1 {
				m.recallN++
				m.input.SetValue(m.recall[m.recallN])
				m.input.CursorEnd()
			} else {
				m.recallN = len(m.recall)
				m.input.Reset()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 12

	case bootedMsg:
		m.err = msg.err
		m.sys = msg.sys
		m.sess = msg.sess

	case execResultMsg:
		m.busy = false
		m.entries = append(m.entries, msg.entry)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *shellModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.sess == nil {
		return "Registering devices..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chardev shell"))
	b.WriteString(fmt.Sprintf(" %d devices\n\n", len(m.sys.host.Devices())))

	var lines []string
	for _, e := range m.entries {
		lines = append(lines, promptStyle.Render("> ")+e.line)
		if e.err != nil {
			lines = append(lines, errorStyle.Render("  "+e.err.Error()))
			continue
		}
		for _, l := range strings.Split(e.out, "\n") {
			if l != "" {
				lines = append(lines, resultStyle.Render("  "+l))
			}
		}
	}
	// Title, blank line, input, blank line and help take five rows.
	if room := m.height - 5; m.height > 0 && len(lines) > room && room > 0 {
		lines = lines[len(lines)-room:]
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • clear • exit"))
	return b.String()
}
