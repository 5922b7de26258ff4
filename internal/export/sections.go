// Package export renders snapshots as HTML, JSON and Markdown documents.
package export

import (
	"github.com/lotas/tabregel/internal/types"
)

// UnnamedGroup titles a group without a title.
const UnnamedGroup = "Unnamed group"

// Ungrouped titles the section of tabs outside any group.
const Ungrouped = "Ungrouped"

// Section is a titled run of tabs: one tab group, or the ungrouped tabs.
type Section struct {
	GroupID int
	Title   string
	Color   types.Color
	Tabs    []*types.Tab
}

// Sections splits tabs into one section per group, in order of first
// appearance, followed by the ungrouped tabs. Tabs whose group is unknown
// go into a grey "Unnamed group" section.
func Sections(tabs []*types.Tab, groups []*types.Group) []Section {
	info := make(map[int]*types.Group, len(groups))
	for _, g := range groups {
		info[g.ID] = g
	}

	var out []Section
	pos := make(map[int]int)
	var loose []*types.Tab
	for _, t := range tabs {
		if !t.Grouped() {
			loose = append(loose, t)
			continue
		}
		i, ok := pos[t.GroupID]
		if !ok {
			s := Section{GroupID: t.GroupID, Title: UnnamedGroup, Color: types.DefaultColor}
			if g := info[t.GroupID]; g != nil {
				if g.Title != "" {
					s.Title = g.Title
				}
				s.Color = g.Color.OrDefault()
			}
			i = len(out)
			pos[t.GroupID] = i
			out = append(out, s)
		}
		out[i].Tabs = append(out[i].Tabs, t)
	}
	if len(loose) > 0 {
		out = append(out, Section{GroupID: types.NoGroup, Title: Ungrouped, Tabs: loose})
	}
	return out
}
