package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabregel/internal/types"
)

// ColorPicker selects one of the group palette colors.
type ColorPicker struct {
	Colors []types.Color
	Cursor int
}

// NewColorPicker starts on current, or on the first color when current is
// not in the palette.
func NewColorPicker(current types.Color) ColorPicker {
	p := ColorPicker{Colors: types.Palette}
	for i, c := range p.Colors {
		if c == current {
			p.Cursor = i
		}
	}
	return p
}

func (m *ColorPicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ColorPicker) MoveDown() {
	if m.Cursor < len(m.Colors)-1 {
		m.Cursor++
	}
}

func (m ColorPicker) Selected() types.Color {
	if m.Cursor >= 0 && m.Cursor < len(m.Colors) {
		return m.Colors[m.Cursor]
	}
	return types.DefaultColor
}

func swatch(c types.Color) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(c.Hex())).Render("  ")
}

func (m ColorPicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Group color:") + "\n\n")

	for i, c := range m.Colors {
		label := string(c)
		if i == m.Cursor {
			label = selectedStyle.Render(label)
		} else {
			label = normalStyle.Render("  " + label)
		}
		b.WriteString(swatch(c) + " " + label + "\n")
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter confirm · esc cancel"))

	return boxStyle.Render(b.String())
}
