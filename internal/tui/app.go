// Package tui is an interactive editor for grouping rules.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/types"
)

// --- Messages ---

type rulesLoadedMsg struct {
	editor *rules.Editor
	err    error
}

type rulesSavedMsg struct {
	count int
	err   error
}

// --- Model ---

type Model struct {
	ctx    context.Context
	store  rules.Store
	source string
	editor *rules.Editor

	// UI state
	cursor        int
	patCursor     int
	onPatterns    bool
	form          RuleForm
	showForm      bool
	picker        ColorPicker
	showPicker    bool
	confirmClear  bool
	confirmQuit   bool
	loading       bool
	status        string
	err           error
	width, height int
}

// NewModel returns an editor over store. source names the store in the
// top bar.
func NewModel(ctx context.Context, store rules.Store, source string) Model {
	return Model{
		ctx:     ctx,
		store:   store,
		source:  source,
		form:    NewRuleForm(),
		loading: true,
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.load
}

func (m Model) load() tea.Msg {
	e, err := rules.Load(m.ctx, m.store)
	return rulesLoadedMsg{editor: e, err: err}
}

func (m Model) save() tea.Cmd {
	editor := m.editor
	return func() tea.Msg {
		err := editor.Save(m.ctx, m.store)
		return rulesSavedMsg{count: editor.Len(), err: err}
	}
}

func (m *Model) current() (types.Rule, bool) {
	rs := m.editor.Rules()
	if m.cursor < 0 || m.cursor >= len(rs) {
		return types.Rule{}, false
	}
	return rs[m.cursor], true
}

func (m *Model) clamp() {
	n := m.editor.Len()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	r, ok := m.current()
	if !ok || m.patCursor >= len(r.Patterns) {
		m.patCursor = len(r.Patterns) - 1
	}
	if m.patCursor < 0 {
		m.patCursor = 0
	}
	if !ok {
		m.onPatterns = false
	}
}

func (m *Model) fail(err error) {
	m.err = err
	m.status = ""
}

func (m *Model) note(format string, args ...any) {
	m.err = nil
	m.status = fmt.Sprintf(format, args...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.form.Width = m.width/2 - 8
		return m, nil

	case rulesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.fail(fmt.Errorf("load rules: %w", msg.err))
			m.editor = rules.NewEditor(nil)
			return m, nil
		}
		m.editor = msg.editor
		m.note("Loaded %d rules", m.editor.Len())
		return m, nil

	case rulesSavedMsg:
		if msg.err != nil {
			applog.Error("tui.save", msg.err)
			m.fail(fmt.Errorf("save rules: %w", msg.err))
			return m, nil
		}
		applog.Info("tui.saved", "rules", msg.count)
		m.note("Saved %d rules", msg.count)
		return m, nil

	case tea.KeyMsg:
		if m.loading {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}
		if m.showPicker {
			return m.updatePicker(msg)
		}
		if m.showForm {
			return m.updateForm(msg)
		}
		return m.updateList(msg)
	}

	if m.showForm {
		var cmd tea.Cmd
		m.form, cmd = m.form.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.picker.MoveUp()
	case "down", "j":
		m.picker.MoveDown()
	case "enter":
		if err := m.editor.SelectColor(m.picker.Selected()); err != nil {
			m.fail(err)
		}
		m.showPicker = false
	case "esc":
		m.showPicker = false
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editor.Cancel()
		m.showForm = false
		m.note("Cancelled")
		return m, nil
	case "tab", "shift+tab":
		return m, m.form.Toggle()
	case "ctrl+o":
		m.picker = NewColorPicker(m.editor.Color())
		m.showPicker = true
		return m, nil
	case "ctrl+s":
		name, patterns := m.form.Values()
		i, err := m.editor.Submit(name, patterns)
		if err != nil {
			m.fail(err)
			return m, nil
		}
		m.showForm = false
		m.cursor = i
		m.clamp()
		r, _ := m.current()
		m.note("Rule %q: %d patterns", r.Name, len(r.Patterns))
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirmClear {
		m.confirmClear = false
		if key == "y" {
			if err := m.editor.Clear(); err != nil {
				m.fail(err)
			} else {
				m.clamp()
				m.note("All rules cleared")
			}
		} else {
			m.note("Clear cancelled")
		}
		return m, nil
	}

	if key != "q" {
		m.confirmQuit = false
	}

	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		if m.editor.Dirty() && !m.confirmQuit {
			m.confirmQuit = true
			m.note("Unsaved changes: press q again to discard, s to save")
			return m, nil
		}
		return m, tea.Quit
	case "up", "k":
		if m.onPatterns {
			if m.patCursor > 0 {
				m.patCursor--
			}
		} else if m.cursor > 0 {
			m.cursor--
			m.patCursor = 0
		}
	case "down", "j":
		if m.onPatterns {
			r, _ := m.current()
			if m.patCursor < len(r.Patterns)-1 {
				m.patCursor++
			}
		} else if m.cursor < m.editor.Len()-1 {
			m.cursor++
			m.patCursor = 0
		}
	case "tab":
		if _, ok := m.current(); ok {
			m.onPatterns = !m.onPatterns
		}
	case "a":
		m.editor.Cancel()
		m.showForm = true
		return m, m.form.Open(types.Rule{}, false)
	case "e", "enter":
		r, err := m.editor.Edit(m.cursor)
		if err != nil {
			return m, nil
		}
		m.showForm = true
		return m, m.form.Open(r, true)
	case "K", "shift+up":
		if m.editor.Move(m.cursor, -1) {
			m.cursor--
		}
	case "J", "shift+down":
		if m.editor.Move(m.cursor, 1) {
			m.cursor++
		}
	case "d", "delete":
		r, ok := m.current()
		if !ok {
			return m, nil
		}
		if m.onPatterns {
			removed, err := m.editor.DeletePattern(m.cursor, m.patCursor)
			if err != nil {
				m.fail(err)
				return m, nil
			}
			if removed {
				m.note("Removed rule %q with its last pattern", r.Name)
			} else {
				m.note("Removed pattern %q", r.Patterns[m.patCursor])
			}
		} else {
			if err := m.editor.Delete(m.cursor); err != nil {
				m.fail(err)
				return m, nil
			}
			m.note("Deleted rule %q", r.Name)
		}
		m.clamp()
	case "C":
		if m.editor.Len() == 0 {
			m.fail(rules.ErrEmpty)
			return m, nil
		}
		m.confirmClear = true
		m.note("Delete all %d rules? y/n", m.editor.Len())
	case "s", "ctrl+s":
		return m, m.save()
	}
	return m, nil
}

func (m Model) View() string {
	if m.loading {
		return "\n  Loading rules...\n"
	}
	if m.showPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.picker.View())
	}
	if m.showForm {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.form.View(m.editor.Color()))
	}

	rs := m.editor.Rules()
	patterns := 0
	for _, r := range rs {
		patterns += len(r.Patterns)
	}
	topBar := renderTopBar(m.source, len(rs), patterns, m.editor.Dirty(), m.width)

	listWidth := m.width * ListWidthPct / 100
	detailWidth := m.width - listWidth - 4
	paneHeight := m.height - 4
	if paneHeight < 3 {
		paneHeight = 3
	}

	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(listWidth).
		Height(paneHeight)
	detailBorder := listBorder.Width(detailWidth)
	if m.onPatterns {
		detailBorder = detailBorder.BorderForeground(lipgloss.Color("62"))
	} else {
		listBorder = listBorder.BorderForeground(lipgloss.Color("62"))
	}

	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		listBorder.Render(m.viewList(rs)),
		detailBorder.Render(m.viewPatterns(rs)),
	)

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Padding(0, 1)

	var status string
	switch {
	case m.err != nil:
		status = errStyle.Render(m.err.Error())
	case m.status != "":
		status = statusStyle.Render(m.status)
	}
	help := bottomBarStyle.Render("↑↓/jk navigate · tab rules/patterns · a add · e edit · J/K move · d delete · C clear · s save · q quit")

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, status, help)
}

func (m Model) viewList(rs []types.Rule) string {
	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	if len(rs) == 0 {
		return dimStyle.Render("No rules yet. Press a to add one.")
	}
	var b strings.Builder
	for i, r := range rs {
		line := fmt.Sprintf("%2d. %s %s", i+1, r.Name, dimStyle.Render(fmt.Sprintf("(%d)", len(r.Patterns))))
		if i == m.cursor && !m.onPatterns {
			line = cursorStyle.Render(fmt.Sprintf("%2d. %s (%d)", i+1, r.Name, len(r.Patterns)))
		}
		b.WriteString(swatch(r.Color.OrDefault()) + " " + line + "\n")
	}
	return b.String()
}

func (m Model) viewPatterns(rs []types.Rule) string {
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)

	if m.cursor >= len(rs) {
		return ""
	}
	r := rs[m.cursor]
	var b strings.Builder
	b.WriteString(labelStyle.Render("Name: ") + r.Name + "\n")
	b.WriteString(labelStyle.Render("Color: ") + swatch(r.Color.OrDefault()) + " " + string(r.Color.OrDefault()) + "\n\n")
	b.WriteString(labelStyle.Render("Patterns") + "\n")
	for i, p := range r.Patterns {
		if m.onPatterns && i == m.patCursor {
			b.WriteString(cursorStyle.Render("  "+p) + "\n")
			continue
		}
		b.WriteString("  " + p + "\n")
	}
	return b.String()
}

// Run starts the editor full screen and blocks until it exits.
func Run(ctx context.Context, store rules.Store, source string) error {
	p := tea.NewProgram(NewModel(ctx, store, source), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
