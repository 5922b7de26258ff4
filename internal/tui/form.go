package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabregel/internal/types"
)

// RuleForm holds the name and pattern inputs for adding or editing a rule.
type RuleForm struct {
	name     textinput.Model
	patterns textarea.Model
	// onPatterns is true when the patterns field has focus.
	onPatterns bool
	editing    bool
	Width      int
}

func NewRuleForm() RuleForm {
	name := textinput.New()
	name.Placeholder = "Group name"
	name.Prompt = "Name: "
	name.CharLimit = 64

	patterns := textarea.New()
	patterns.Placeholder = "*example.com*\none pattern per line"
	patterns.ShowLineNumbers = false
	patterns.SetHeight(6)

	return RuleForm{name: name, patterns: patterns, Width: 60}
}

// Open resets the form to r and focuses the name field.
func (f *RuleForm) Open(r types.Rule, editing bool) tea.Cmd {
	f.editing = editing
	f.onPatterns = false
	f.name.SetValue(r.Name)
	f.patterns.SetValue(strings.Join(r.Patterns, "\n"))
	f.patterns.Blur()
	return f.name.Focus()
}

// Values returns the raw name and pattern text.
func (f RuleForm) Values() (name, patterns string) {
	return f.name.Value(), f.patterns.Value()
}

// Toggle moves focus to the other field.
func (f *RuleForm) Toggle() tea.Cmd {
	f.onPatterns = !f.onPatterns
	if f.onPatterns {
		f.name.Blur()
		return f.patterns.Focus()
	}
	f.patterns.Blur()
	return f.name.Focus()
}

// Update forwards input to the focused field.
func (f RuleForm) Update(msg tea.Msg) (RuleForm, tea.Cmd) {
	var cmd tea.Cmd
	if f.onPatterns {
		f.patterns, cmd = f.patterns.Update(msg)
	} else {
		f.name, cmd = f.name.Update(msg)
	}
	return f, cmd
}

func (f RuleForm) View(color types.Color) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	title := "New rule"
	if f.editing {
		title = "Edit rule"
	}
	f.patterns.SetWidth(f.Width)

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	b.WriteString(f.name.View() + "\n\n")
	b.WriteString(labelStyle.Render("Patterns") + "\n")
	b.WriteString(f.patterns.View() + "\n\n")
	b.WriteString(labelStyle.Render("Color: ") + swatch(color) + " " + string(color) + "\n\n")
	b.WriteString(dimStyle.Render("tab switch field · ctrl+o color · ctrl+s save · esc cancel"))
	return boxStyle.Render(b.String())
}
