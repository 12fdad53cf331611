package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	wrenruntime "github.com/wippyai/wren-runtime"
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

const prompt = "> "

type interactiveModel struct {
	session  *session
	label    string
	input    textinput.Model
	output   viewport.Model
	history  []string
	lines    []string
	histIdx  int
	ready    bool
	quitting bool
}

func newInteractiveModel(s *session, label string) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(prompt)
	ti.Placeholder = "System.print(\"hello\")"
	ti.Focus()

	return &interactiveModel{
		session: s,
		label:   label,
		input:   ti,
		output:  viewport.New(80, 20),
	}
}

func runInteractive(eng wrenruntime.Engine, cfg *Config, dirs []string) error {
	s, err := newSession(eng, cfg, dirs)
	if err != nil {
		return err
	}
	label := "built-in engine"
	if cfg.Wasm != "" {
		label = cfg.Wasm
	}
	_, runErr := tea.NewProgram(newInteractiveModel(s, label), tea.WithAltScreen()).Run()
	closeErr := s.close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.output.Width = msg.Width
		m.output.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-len(prompt)-1, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			m.submit(m.input.Value())
			m.input.Reset()
			return m, nil

		case "up":
			m.recall(-1)
			return m, nil

		case "down":
			m.recall(1)
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) submit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	m.history = append(m.history, line)
	m.histIdx = len(m.history)
	m.lines = append(m.lines, promptStyle.Render(prompt)+line)

	res, err := m.session.eval(line)
	if out := m.session.output(); out != "" {
		m.lines = append(m.lines, resultStyle.Render(out))
	}
	if text := m.session.errorText(); text != "" {
		m.lines = append(m.lines, errorStyle.Render(text))
	}
	if err != nil {
		m.lines = append(m.lines, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
	} else if res != wrenruntime.ResultSuccess && m.session.errorText() == "" {
		m.lines = append(m.lines, errorStyle.Render(res.String()))
	}
	m.refresh()
}

func (m *interactiveModel) recall(step int) {
	if len(m.history) == 0 {
		return
	}
	m.histIdx = min(max(m.histIdx+step, 0), len(m.history))
	if m.histIdx == len(m.history) {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *interactiveModel) refresh() {
	m.output.SetContent(strings.Join(m.lines, "\n"))
	m.output.GotoBottom()
}

func (m *interactiveModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting VM..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Wren"))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%s (%s)", versionString(m.session.vm.Version()), m.label))
	b.WriteString("\n")
	b.WriteString(m.output.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • pgup/pgdown scroll • esc quit"))
	return b.String()
}
