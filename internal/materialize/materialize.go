// Package materialize turns partitions and plans into group mutations.
package materialize

import (
	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/classify"
	"github.com/lotas/tabregel/internal/reorder"
	"github.com/lotas/tabregel/internal/types"
)

// UnnamedGroup is the title base used when renumbering an untitled group.
const UnnamedGroup = "Unnamed group"

// GroupSpec describes one group to create or re-assert over a set of tabs.
type GroupSpec struct {
	Key    string
	TabIDs []int
	// Into is an existing group to add the tabs to, or types.NoGroup to
	// create a new one.
	Into      int
	Title     string
	Color     types.Color
	Collapsed bool
}

// Update is a title change for an existing group.
type Update struct {
	GroupID   int
	Title     string
	Collapsed bool
}

func tabIDs(tabs []*types.Tab) []int {
	ids := make([]int, len(tabs))
	for i, t := range tabs {
		ids[i] = t.ID
	}
	return ids
}

// ForRules returns one new group per non-empty rule bucket, titled with the
// bucket size. A rule whose group existed before keeps that group's
// collapsed state; others use collapseNew.
func ForRules(p *classify.Partition, existing []*types.Group, collapseNew bool) []GroupSpec {
	prior := make(map[string]bool)
	for _, g := range existing {
		name := classify.StripCount(g.Title)
		if _, seen := prior[name]; !seen {
			prior[name] = g.Collapsed
		}
	}

	specs := make([]GroupSpec, 0, len(p.Buckets))
	for _, b := range p.Buckets {
		collapsed, ok := prior[b.Rule.Name]
		if !ok {
			collapsed = collapseNew
		}
		specs = append(specs, GroupSpec{
			Key:       b.Rule.Name,
			TabIDs:    tabIDs(b.Tabs),
			Into:      types.NoGroup,
			Title:     classify.TitleWithCount(b.Rule.Name, len(b.Tabs)),
			Color:     ruleColor(b.Rule),
			Collapsed: collapsed,
		})
	}
	return specs
}

func ruleColor(r types.Rule) types.Color {
	if r.Color.Valid() {
		return r.Color
	}
	applog.Warn("rule.color.invalid", "rule", r.Name, "color", string(r.Color), "fallback", string(types.DefaultColor))
	return types.DefaultColor
}

// ForDomains returns one new group per keyed plan section, colored
// round-robin from the palette in section order.
func ForDomains(plan *reorder.Plan, collapseNew bool) []GroupSpec {
	var specs []GroupSpec
	for _, s := range plan.Sections {
		if s.Key == "" {
			continue
		}
		specs = append(specs, GroupSpec{
			Key:       s.Key,
			TabIDs:    tabIDs(s.Tabs),
			Into:      types.NoGroup,
			Title:     classify.TitleWithCount(s.Key, len(s.Tabs)),
			Color:     types.PaletteColor(len(specs)),
			Collapsed: collapseNew,
		})
	}
	return specs
}

// Capture copies each group's title, color and collapsed state by ID.
func Capture(groups []*types.Group) map[int]types.Group {
	out := make(map[int]types.Group, len(groups))
	for _, g := range groups {
		out[g.ID] = *g
	}
	return out
}

// Regroup rebuilds the groups of a sort or reverse plan from captured
// state. With recreate set, every group is created anew and carries its
// old attributes; otherwise tabs are re-added to their original group.
func Regroup(plan *reorder.Plan, captured map[int]types.Group, recreate bool) []GroupSpec {
	var specs []GroupSpec
	for _, s := range plan.Sections {
		if s.GroupID == types.NoGroup {
			continue
		}
		g, ok := captured[s.GroupID]
		if !ok {
			g = types.Group{ID: s.GroupID, Color: types.DefaultColor}
		}
		into := s.GroupID
		if recreate {
			into = types.NoGroup
		}
		specs = append(specs, GroupSpec{
			Key:       g.Title,
			TabIDs:    tabIDs(s.Tabs),
			Into:      into,
			Title:     g.Title,
			Color:     g.Color.OrDefault(),
			Collapsed: g.Collapsed,
		})
	}
	return specs
}

// Renumber retitles every group to "<base>_<count>" using the number of
// tabs currently in it. Collapsed state is kept.
func Renumber(tabs []*types.Tab, groups []*types.Group) []Update {
	counts := make(map[int]int)
	for _, t := range tabs {
		if t.Grouped() {
			counts[t.GroupID]++
		}
	}

	updates := make([]Update, 0, len(groups))
	for _, g := range groups {
		base := classify.StripCount(g.Title)
		if base == "" {
			base = UnnamedGroup
		}
		updates = append(updates, Update{
			GroupID:   g.ID,
			Title:     classify.TitleWithCount(base, counts[g.ID]),
			Collapsed: g.Collapsed,
		})
	}
	return updates
}
