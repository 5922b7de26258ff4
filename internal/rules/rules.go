// Package rules persists the ordered grouping rule list and provides the
// editing session, validation and import/export used by the CLI and TUI.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/types"
)

var (
	// ErrInvalidRule wraps every validation failure.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrEmpty is returned when exporting or clearing an empty rule list.
	ErrEmpty = errors.New("no rules")
)

// Store holds the ordered rule list. SetRules replaces the whole list.
type Store interface {
	Rules(ctx context.Context) ([]types.Rule, error)
	SetRules(ctx context.Context, rules []types.Rule) error
}

// ParsePatterns splits newline-separated pattern text, trimming each line
// and dropping blank ones.
func ParsePatterns(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// New builds a validated rule from form input. An unknown color falls back
// to the default with a warning.
func New(name, patterns string, color types.Color) (types.Rule, error) {
	r := types.Rule{
		Name:     strings.TrimSpace(name),
		Patterns: ParsePatterns(patterns),
		Color:    color,
	}
	if !r.Color.Valid() {
		applog.Warn("rule.color.invalid", "rule", r.Name, "color", string(color), "fallback", string(types.DefaultColor))
		r.Color = types.DefaultColor
	}
	return r, Validate(r)
}

// Validate checks that a rule has a name and at least one pattern.
func Validate(r types.Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("%w: %q needs at least one pattern", ErrInvalidRule, r.Name)
	}
	for _, p := range r.Patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %q has an empty pattern", ErrInvalidRule, r.Name)
		}
	}
	return nil
}

// ValidateAll validates every rule and reports the first failure with its
// position.
func ValidateAll(rules []types.Rule) error {
	for i, r := range rules {
		if err := Validate(r); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return nil
}

// Clone deep-copies a rule list.
func Clone(rules []types.Rule) []types.Rule {
	out := make([]types.Rule, len(rules))
	for i, r := range rules {
		out[i] = r
		out[i].Patterns = append([]string(nil), r.Patterns...)
	}
	return out
}
