// Package reorder computes target tab orderings and the moves that realize
// them. Pinned tabs keep positions [0, pinnedCount) and are never moved.
package reorder

import (
	"sort"
	"strings"

	"github.com/lotas/tabregel/internal/analyzer"
	"github.com/lotas/tabregel/internal/classify"
	"github.com/lotas/tabregel/internal/types"
)

// Move places a tab at an absolute strip index.
type Move struct {
	TabID int
	Index int
}

// Section is a run of tabs that ends up contiguous after the moves.
// Key names the rule or domain the section belongs to; GroupID is the
// group the tabs were in before reordering, or types.NoGroup.
type Section struct {
	Key     string
	GroupID int
	Tabs    []*types.Tab
}

// Plan is a target order for the unpinned part of a window.
type Plan struct {
	// Start is the first index a moved tab occupies, the pinned count.
	Start    int
	Sections []Section
	// Trailing tabs are not moved; they end up after the planned ones.
	Trailing []*types.Tab
}

// Order returns the moved tabs in target order.
func (p *Plan) Order() []*types.Tab {
	var out []*types.Tab
	for _, s := range p.Sections {
		out = append(out, s.Tabs...)
	}
	return out
}

// Moves returns one move per planned tab. Applied in sequence, each move
// lands next to the already placed prefix.
func (p *Plan) Moves() []Move {
	order := p.Order()
	moves := make([]Move, len(order))
	for i, tab := range order {
		moves[i] = Move{TabID: tab.ID, Index: p.Start + i}
	}
	return moves
}

// Satisfied reports whether current, a window's tabs in strip order,
// already has the planned tabs at their target indices.
func (p *Plan) Satisfied(current []*types.Tab) bool {
	order := p.Order()
	if len(current) < p.Start+len(order) {
		return false
	}
	for i, tab := range order {
		if current[p.Start+i].ID != tab.ID {
			return false
		}
	}
	return true
}

// Split separates pinned tabs from the rest, keeping strip order.
func Split(tabs []*types.Tab) (pinned, rest []*types.Tab) {
	for _, tab := range tabs {
		if tab.Pinned {
			pinned = append(pinned, tab)
		} else {
			rest = append(rest, tab)
		}
	}
	return pinned, rest
}

// RulePlan orders each rule bucket in rule order, then the unclaimed
// tabs. Tabs in manual groups trail behind in their existing order.
func RulePlan(p *classify.Partition) *Plan {
	plan := &Plan{Start: len(p.Pinned), Trailing: p.Manual}
	for _, b := range p.Buckets {
		plan.Sections = append(plan.Sections, Section{Key: b.Rule.Name, GroupID: types.NoGroup, Tabs: b.Tabs})
	}
	if len(p.Ungrouped) > 0 {
		plan.Sections = append(plan.Sections, Section{GroupID: types.NoGroup, Tabs: p.Ungrouped})
	}
	return plan
}

// DomainPlan moves every base domain with at least minTabs tabs into a
// contiguous run, in first-encounter order, followed by all other tabs.
func DomainPlan(tabs []*types.Tab, minTabs int) *Plan {
	if minTabs < 1 {
		minTabs = 1
	}
	pinned, rest := Split(tabs)
	plan := &Plan{Start: len(pinned)}

	var keys []string
	buckets := make(map[string][]*types.Tab)
	for _, tab := range rest {
		d := analyzer.BaseDomain(tab.URL)
		if _, ok := buckets[d]; !ok {
			keys = append(keys, d)
		}
		buckets[d] = append(buckets[d], tab)
	}

	var leftover []*types.Tab
	qualifies := func(d string) bool { return len(buckets[d]) >= minTabs }
	for _, d := range keys {
		if qualifies(d) {
			plan.Sections = append(plan.Sections, Section{Key: d, GroupID: types.NoGroup, Tabs: buckets[d]})
		}
	}
	for _, tab := range rest {
		if !qualifies(analyzer.BaseDomain(tab.URL)) {
			leftover = append(leftover, tab)
		}
	}
	if len(leftover) > 0 {
		plan.Sections = append(plan.Sections, Section{GroupID: types.NoGroup, Tabs: leftover})
	}
	return plan
}

// SortKey selects what SortPlan compares.
type SortKey string

const (
	ByDomain SortKey = "domain"
	ByTitle  SortKey = "title"
)

// ParseSortKey accepts "domain" or "title".
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case ByDomain:
		return ByDomain, true
	case ByTitle:
		return ByTitle, true
	}
	return "", false
}

// SortPlan sorts the tabs of each existing group, groups in the order
// they first appear, then sorts the ungrouped tabs. Ties on the key are
// broken by title; comparison is case-insensitive and stable.
func SortPlan(tabs []*types.Tab, key SortKey) *Plan {
	plan := sectionsByGroup(tabs)
	for i := range plan.Sections {
		sortTabs(plan.Sections[i].Tabs, key)
	}
	return plan
}

// ReversePlan reverses the tabs of each existing group and the ungrouped
// tabs, keeping groups in first-appearance order. Applying it twice
// restores the relative order within every section.
func ReversePlan(tabs []*types.Tab) *Plan {
	plan := sectionsByGroup(tabs)
	for i := range plan.Sections {
		s := plan.Sections[i].Tabs
		for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
			s[l], s[r] = s[r], s[l]
		}
	}
	return plan
}

func sectionsByGroup(tabs []*types.Tab) *Plan {
	pinned, rest := Split(tabs)
	plan := &Plan{Start: len(pinned)}

	index := make(map[int]int)
	var ungrouped []*types.Tab
	for _, tab := range rest {
		if !tab.Grouped() {
			ungrouped = append(ungrouped, tab)
			continue
		}
		i, ok := index[tab.GroupID]
		if !ok {
			i = len(plan.Sections)
			index[tab.GroupID] = i
			plan.Sections = append(plan.Sections, Section{GroupID: tab.GroupID})
		}
		plan.Sections[i].Tabs = append(plan.Sections[i].Tabs, tab)
	}
	if len(ungrouped) > 0 {
		plan.Sections = append(plan.Sections, Section{GroupID: types.NoGroup, Tabs: ungrouped})
	}
	return plan
}

func sortTabs(tabs []*types.Tab, key SortKey) {
	primary := func(t *types.Tab) string { return strings.ToLower(t.Title) }
	if key == ByDomain {
		primary = func(t *types.Tab) string { return analyzer.BaseDomain(t.URL) }
	}
	sort.SliceStable(tabs, func(i, j int) bool {
		a, b := primary(tabs[i]), primary(tabs[j])
		if a != b {
			return a < b
		}
		return strings.ToLower(tabs[i].Title) < strings.ToLower(tabs[j].Title)
	})
}
