package rules

import (
	"context"
	"fmt"

	"github.com/lotas/tabregel/internal/types"
)

// Editor is one rule editing session. It holds a working copy of the list,
// the index being edited (-1 when adding) and the selected color. Changes
// reach the store only through Save.
type Editor struct {
	rules   []types.Rule
	editing int
	color   types.Color
	dirty   bool
}

// NewEditor starts a session over a copy of rules.
func NewEditor(rules []types.Rule) *Editor {
	return &Editor{rules: Clone(rules), editing: -1, color: types.ColorBlue}
}

// Load starts a session from the store's current rules.
func Load(ctx context.Context, s Store) (*Editor, error) {
	rules, err := s.Rules(ctx)
	if err != nil {
		return nil, err
	}
	return NewEditor(rules), nil
}

// Rules returns a copy of the working list.
func (e *Editor) Rules() []types.Rule { return Clone(e.rules) }

// Len returns the number of rules.
func (e *Editor) Len() int { return len(e.rules) }

// Dirty reports whether the list changed since the last Save.
func (e *Editor) Dirty() bool { return e.dirty }

// Editing returns the index under edit, or -1 when adding.
func (e *Editor) Editing() int { return e.editing }

// Color returns the selected color.
func (e *Editor) Color() types.Color { return e.color }

// SelectColor sets the color used by the next Submit.
func (e *Editor) SelectColor(c types.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", types.ErrUnknownColor, c)
	}
	e.color = c
	return nil
}

func (e *Editor) check(i int) error {
	if i < 0 || i >= len(e.rules) {
		return fmt.Errorf("rule %d: out of range", i+1)
	}
	return nil
}

// Edit switches to editing rule i and returns it; its color becomes the
// selected color.
func (e *Editor) Edit(i int) (types.Rule, error) {
	if err := e.check(i); err != nil {
		return types.Rule{}, err
	}
	e.editing = i
	e.color = e.rules[i].Color.OrDefault()
	r := e.rules[i]
	r.Patterns = append([]string(nil), r.Patterns...)
	return r, nil
}

// Cancel leaves edit mode without changes.
func (e *Editor) Cancel() {
	e.editing = -1
}

// Submit adds a rule from form input, or replaces the rule under edit.
// It returns the index the rule ended up at.
func (e *Editor) Submit(name, patterns string) (int, error) {
	r, err := New(name, patterns, e.color)
	if err != nil {
		return -1, err
	}
	i := e.editing
	if i >= 0 && i < len(e.rules) {
		e.rules[i] = r
	} else {
		e.rules = append(e.rules, r)
		i = len(e.rules) - 1
	}
	e.editing = -1
	e.dirty = true
	return i, nil
}

// Move swaps rule i with its neighbor in direction dir (-1 up, +1 down).
// Moving past either end is a no-op.
func (e *Editor) Move(i, dir int) bool {
	j := i + dir
	if e.check(i) != nil || j < 0 || j >= len(e.rules) {
		return false
	}
	e.rules[i], e.rules[j] = e.rules[j], e.rules[i]
	switch e.editing {
	case i:
		e.editing = j
	case j:
		e.editing = i
	}
	e.dirty = true
	return true
}

// Delete removes rule i.
func (e *Editor) Delete(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	e.rules = append(e.rules[:i], e.rules[i+1:]...)
	switch {
	case e.editing == i:
		e.editing = -1
	case e.editing > i:
		e.editing--
	}
	e.dirty = true
	return nil
}

// DeletePattern removes one pattern of rule ri. Removing the last pattern
// removes the rule; the return value reports that case.
func (e *Editor) DeletePattern(ri, pi int) (ruleRemoved bool, err error) {
	if err := e.check(ri); err != nil {
		return false, err
	}
	r := &e.rules[ri]
	if pi < 0 || pi >= len(r.Patterns) {
		return false, fmt.Errorf("pattern %d of %q: out of range", pi+1, r.Name)
	}
	if len(r.Patterns) == 1 {
		return true, e.Delete(ri)
	}
	r.Patterns = append(r.Patterns[:pi:pi], r.Patterns[pi+1:]...)
	e.dirty = true
	return false, nil
}

// Clear removes every rule.
func (e *Editor) Clear() error {
	if len(e.rules) == 0 {
		return ErrEmpty
	}
	e.rules = nil
	e.editing = -1
	e.dirty = true
	return nil
}

// Replace swaps in an imported list.
func (e *Editor) Replace(rules []types.Rule) error {
	if err := ValidateAll(rules); err != nil {
		return err
	}
	e.rules = Clone(rules)
	e.editing = -1
	e.dirty = true
	return nil
}

// Save writes the working list to s.
func (e *Editor) Save(ctx context.Context, s Store) error {
	if err := s.SetRules(ctx, e.Rules()); err != nil {
		return err
	}
	e.dirty = false
	return nil
}
