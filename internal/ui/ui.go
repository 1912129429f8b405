package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// UI is what a chat session shows the user.
type UI interface {
	Banner(botName, exitCommand string)
	Prompt()
	Reply(botName, text string)
	// Notice reports something the user should know but that doesn't stop
	// the chat, like a memory flush that failed.
	Notice(msg string)
	Error(msg string)
	// UpdateBuffer reports how many turns wait for the next summary.
	UpdateBuffer(pending, threshold int)
}

type SilentUI struct{}

func (s SilentUI) Banner(botName, exitCommand string)  {}
func (s SilentUI) Prompt()                             {}
func (s SilentUI) Reply(botName, text string)          {}
func (s SilentUI) Notice(msg string)                   {}
func (s SilentUI) Error(msg string)                    {}
func (s SilentUI) UpdateBuffer(pending, threshold int) {}

// Console is the line-mode chat UI.
type Console struct {
	out io.Writer

	info   lipgloss.Style
	bot    lipgloss.Style
	user   lipgloss.Style
	notice lipgloss.Style
	errs   lipgloss.Style
}

// NewConsole styles output for out; colors are dropped when out is not a
// terminal.
func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:    out,
		info:   r.NewStyle().Foreground(lipgloss.Color("2")),
		bot:    r.NewStyle().Foreground(lipgloss.Color("5")),
		user:   r.NewStyle().Foreground(lipgloss.Color("4")),
		notice: r.NewStyle().Foreground(lipgloss.Color("3")),
		errs:   r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (c *Console) Banner(botName, exitCommand string) {
	fmt.Fprintf(c.out, "%s%s %s\n",
		c.info.Render("You are talking to "),
		c.bot.Render(botName),
		c.info.Render(fmt.Sprintf("(Type '%s' to stop)", exitCommand)))
}

func (c *Console) Prompt() {
	fmt.Fprintf(c.out, "\n%s", c.user.Render("You: "))
}

func (c *Console) Reply(botName, text string) {
	fmt.Fprintf(c.out, "\n%s %s\n", c.bot.Render(botName+":"), text)
}

func (c *Console) Notice(msg string) {
	fmt.Fprintln(c.out, c.notice.Render(msg))
}

func (c *Console) Error(msg string) {
	fmt.Fprintln(c.out, c.errs.Render("Error: "+msg))
}

func (c *Console) UpdateBuffer(pending, threshold int) {}
