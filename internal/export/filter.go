package export

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/lotas/tabregel/internal/types"
)

// DefaultExclude lists browser-internal URLs that are never exported.
var DefaultExclude = []string{
	"chrome://*",
	"edge://*",
	"vivaldi://*",
	"about:*",
	"chrome-extension://*",
	"edge-extension://*",
	"extension://*",
	"file://*",
	"moz-extension://*",
}

// Filter drops tabs from an export.
type Filter struct {
	exclude       []glob.Glob
	ExcludePinned bool
}

// NewFilter compiles the exclusion globs. Matching is case-insensitive.
func NewFilter(patterns []string, excludePinned bool) (*Filter, error) {
	f := &Filter{ExcludePinned: excludePinned}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

// Excluded reports whether tab is left out of the export.
func (f *Filter) Excluded(tab *types.Tab) bool {
	if f.ExcludePinned && tab.Pinned {
		return true
	}
	u := strings.ToLower(tab.URL)
	for _, g := range f.exclude {
		if g.Match(u) {
			return true
		}
	}
	return false
}

// Apply returns a copy of snap without excluded tabs. Windows left empty
// are dropped.
func (f *Filter) Apply(snap *types.Snapshot) *types.Snapshot {
	out := &types.Snapshot{Profile: snap.Profile, TakenAt: snap.TakenAt}
	for _, w := range snap.Windows {
		kept := &types.Window{ID: w.ID, Groups: w.Groups}
		for _, t := range w.Tabs {
			if !f.Excluded(t) {
				kept.Tabs = append(kept.Tabs, t)
			}
		}
		if len(kept.Tabs) > 0 {
			out.Windows = append(out.Windows, kept)
		}
	}
	return out
}
