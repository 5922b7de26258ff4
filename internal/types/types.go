package types

import "time"

const (
	// NoGroup is the group ID of a tab that belongs to no group.
	NoGroup = -1
	// CurrentWindow asks the browser to resolve the focused window.
	CurrentWindow = -2
)

// Tab represents a single browser tab.
type Tab struct {
	ID           int
	WindowID     int
	Index        int
	URL          string
	Title        string
	Pinned       bool
	Active       bool
	GroupID      int // NoGroup if ungrouped
	FavIconURL   string
	LastAccessed time.Time
}

// Grouped reports whether the tab belongs to a tab group.
func (t *Tab) Grouped() bool {
	return t.GroupID != NoGroup && t.GroupID != 0
}

// Group represents a browser tab group.
type Group struct {
	ID        int
	WindowID  int
	Title     string
	Color     Color
	Collapsed bool
}

// Window is a point-in-time view of one browser window.
type Window struct {
	ID     int
	Tabs   []*Tab
	Groups []*Group
}

// Group returns the group with the given ID, or nil.
func (w *Window) Group(id int) *Group {
	for _, g := range w.Groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Rule is a user-defined grouping rule. Rules are ordered; earlier rules
// win when several match the same tab.
type Rule struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
	Color    Color    `json:"color"`
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// Snapshot holds every window of a browser at one point in time.
type Snapshot struct {
	Windows []*Window
	Profile Profile
	TakenAt time.Time
}

// AllTabs returns the tabs of all windows in window order.
func (s *Snapshot) AllTabs() []*Tab {
	var tabs []*Tab
	for _, w := range s.Windows {
		tabs = append(tabs, w.Tabs...)
	}
	return tabs
}

// AllGroups returns the groups of all windows in window order.
func (s *Snapshot) AllGroups() []*Group {
	var groups []*Group
	for _, w := range s.Windows {
		groups = append(groups, w.Groups...)
	}
	return groups
}

// Stats holds aggregate statistics shown after every operation.
type Stats struct {
	Windows int
	Tabs    int
	Groups  int
	Pinned  int
	Domains int
}
