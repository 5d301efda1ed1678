package engine

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const ruleWidth = 72

var ruleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// rule renders the horizontal line framing the echoed output of a run,
// with title embedded when non-empty.
func rule(title string) string {
	if title == "" {
		return ruleStyle.Render(strings.Repeat("─", ruleWidth))
	}
	head := "── " + title + " "
	n := ruleWidth - lipgloss.Width(head)
	if n < 3 {
		n = 3
	}
	return ruleStyle.Render(head + strings.Repeat("─", n))
}
