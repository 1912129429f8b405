package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI forwards session output to a running bubbletea program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) Banner(botName, exitCommand string) {
	t.program.Send(LogMsg(fmt.Sprintf("You are talking to %s (Type '%s' to stop)", botName, exitCommand)))
}

func (t *TUI) Prompt() {}

func (t *TUI) Reply(botName, text string) {
	t.program.Send(ReplyMsg{Bot: botName, Text: text})
}

func (t *TUI) Notice(msg string) {
	t.program.Send(StatusMsg(msg))
}

func (t *TUI) Error(msg string) {
	t.program.Send(ErrorMsg(msg))
}

func (t *TUI) UpdateBuffer(pending, threshold int) {
	t.program.Send(BufferMsg{Pending: pending, Threshold: threshold})
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5FD7"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5F87FF"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))
)

// chrome is the number of rows used by everything except the transcript.
const chrome = 8

type Model struct {
	Title     string
	Status    string
	Pending   int
	Threshold int
	Log       []string
	Input     textinput.Model
	Progress  progress.Model
	Viewport  viewport.Model
	Quitting  bool
	Ready     bool
	Width     int
	Height    int

	interrupted bool
	lines       *lineQueue
}

type LogMsg string
type StatusMsg string
type ErrorMsg string

type ReplyMsg struct {
	Bot  string
	Text string
}

type BufferMsg struct {
	Pending   int
	Threshold int
}

// NewModel builds the chat screen. Every line the user submits is written
// to lines followed by a newline.
func NewModel(title string, threshold int, lines io.Writer) Model {
	in := textinput.New()
	in.Placeholder = "Say something..."
	in.Prompt = "You: "
	in.Focus()

	var q *lineQueue
	if lines != nil {
		q = newLineQueue(lines)
	}

	return Model{
		Title:     title,
		Status:    "Ready",
		Threshold: threshold,
		Input:     in,
		Progress:  progress.New(progress.WithDefaultGradient()),
		lines:     q,
	}
}

// Interrupted reports whether the user left with Ctrl+C instead of the
// exit command.
func (m Model) Interrupted() bool {
	return m.interrupted
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.interrupted = true
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := m.Input.Value()
			m.Input.Reset()
			if strings.TrimSpace(line) != "" {
				m = m.appendLog(userStyle.Render("You: ") + line)
				m.lines.push(line)
			}
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Input.Width = msg.Width - 6
		m.Progress.Width = msg.Width - 4
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.Viewport.SetContent(strings.Join(m.Log, "\n"))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = msg.Height - chrome
		}

	case LogMsg:
		m = m.appendLog(infoStyle.Render(string(msg)))

	case ReplyMsg:
		m = m.appendLog(botStyle.Render(msg.Bot+":") + " " + msg.Text)

	case ErrorMsg:
		m = m.appendLog(errorStyle.Render("Error: " + string(msg)))

	case StatusMsg:
		m.Status = string(msg)

	case BufferMsg:
		m.Pending = msg.Pending
		m.Threshold = msg.Threshold
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) appendLog(line string) Model {
	m.Log = append(m.Log, line)
	m.Viewport.SetContent(strings.Join(m.Log, "\n"))
	m.Viewport.GotoBottom()
	return m
}

// Close flushes submitted lines to the writer and stops the writer
// goroutine. Call it once the program has exited and the writer either has
// a reader or is closed.
func (m Model) Close() {
	m.lines.close()
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(fmt.Sprintf(" %s ", m.Title))
	status := infoStyle.Render(fmt.Sprintf(" %s ", m.Status))
	memory := fmt.Sprintf(" Memory: %d/%d turns until summary ", m.Pending, m.Threshold)

	ratio := 0.0
	if m.Threshold > 0 {
		ratio = float64(m.Pending) / float64(m.Threshold)
	}
	prog := m.Progress.ViewAs(ratio)

	view := fmt.Sprintf("%s%s%s\n\n%s\n\n%s\n%s",
		header, status, memory,
		m.Viewport.View(),
		prog,
		m.Input.View())

	if m.Quitting {
		return view + "\n  Saving chat and exiting...\n"
	}

	return view
}
