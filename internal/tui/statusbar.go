package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ListWidthPct is the percentage of terminal width used for the rule list.
const ListWidthPct = 45

func renderTopBar(source string, rules, patterns int, dirty bool, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	statsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sourceStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dirtyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	left := " " + titleStyle.Render("Grouping rules") + "   " +
		statsStyle.Render(fmt.Sprintf("%d rules · %d patterns", rules, patterns))
	if dirty {
		left += "  " + dirtyStyle.Render("● unsaved")
	}

	right := sourceStyle.Render("Store: " + source)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
