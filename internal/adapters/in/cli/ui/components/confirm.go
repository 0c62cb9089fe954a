package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/courseimages/internal/adapters/in/cli/ui/styles"
)

// Answer is the outcome of a Confirm prompt.
type Answer int

const (
	Unanswered Answer = iota
	Yes
	No
	Cancelled
)

var (
	button        = lipgloss.NewStyle().Padding(0, 2).Foreground(styles.ColorText)
	buttonFocused = button.Bold(true).Foreground(styles.ColorInk).Background(styles.ColorAccent)
)

// Confirm is a yes/no prompt for destructive actions. "No" starts focused
// so an accidental enter keeps everything in place.
type Confirm struct {
	Question string
	Detail   string

	onYes  bool
	answer Answer
}

// Init implements tea.Model.
func (c Confirm) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (c Confirm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return c, nil
	}

	switch key.String() {
	case "left", "right", "h", "l", "tab", "shift+tab":
		c.onYes = !c.onYes
		return c, nil
	case "y", "Y":
		c.answer = Yes
	case "n", "N":
		c.answer = No
	case "enter":
		c.answer = No
		if c.onYes {
			c.answer = Yes
		}
	case "esc", "q", "ctrl+c":
		c.answer = Cancelled
	default:
		return c, nil
	}
	return c, tea.Quit
}

// View implements tea.Model.
func (c Confirm) View() string {
	yes, no := button, buttonFocused
	if c.onYes {
		yes, no = buttonFocused, button
	}

	var b strings.Builder
	b.WriteString(styles.Label.Render(c.Question) + "\n")
	if c.Detail != "" {
		b.WriteString(styles.Faint.Render(c.Detail) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center, yes.Render("Yes"), "  ", no.Render("No")))
	b.WriteString("\n\n")
	b.WriteString(styles.KeyHints(
		[2]string{"y/n", "select"},
		[2]string{"enter", "confirm"},
		[2]string{"esc", "cancel"},
	))
	return b.String()
}

// Answer returns what the user chose so far.
func (c Confirm) Answer() Answer { return c.answer }

// Ask runs a Confirm on the terminal and reports whether the user said yes.
// Cancelling counts as no.
func Ask(question, detail string) (bool, error) {
	final, err := tea.NewProgram(Confirm{Question: question, Detail: detail}).Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return final.(Confirm).Answer() == Yes, nil
}
