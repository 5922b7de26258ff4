package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lotas/tabregel/internal/types"
)

// Memory is a Store backed by plain slices. It follows browser semantics:
// a move removes the tab and reinserts it at the index, grouping pulls the
// tabs next to the group's first tab, and a group disappears with its last
// tab.
type Memory struct {
	mu      sync.Mutex
	windows map[int][]*types.Tab
	groups  map[int]*types.Group
	nextTab int
	nextGrp int

	// FailOn makes the named operation return an error, for tests.
	FailOn map[string]error
	// Calls records every mutating operation in order.
	Calls []string
}

// NewMemory returns an empty store. New tab and group IDs start above any
// ID loaded with Load.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[int][]*types.Tab),
		groups:  make(map[int]*types.Group),
		nextTab: 1,
		nextGrp: 1,
		FailOn:  make(map[string]error),
	}
}

// FromSnapshot builds a store holding copies of the snapshot's windows.
func FromSnapshot(snap *types.Snapshot) *Memory {
	m := NewMemory()
	for _, w := range snap.Windows {
		m.Load(w.ID, w.Tabs, w.Groups)
	}
	return m
}

// Load replaces a window's contents with copies of tabs and groups. Tabs
// are kept in slice order and reindexed.
func (m *Memory) Load(windowID int, tabs []*types.Tab, groups []*types.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()

	strip := make([]*types.Tab, 0, len(tabs))
	for _, t := range tabs {
		c := *t
		c.WindowID = windowID
		if c.GroupID == 0 {
			c.GroupID = types.NoGroup
		}
		strip = append(strip, &c)
		if c.ID >= m.nextTab {
			m.nextTab = c.ID + 1
		}
	}
	m.windows[windowID] = strip
	m.reindex(windowID)

	for _, g := range groups {
		c := *g
		c.WindowID = windowID
		m.groups[c.ID] = &c
		if c.ID >= m.nextGrp {
			m.nextGrp = c.ID + 1
		}
	}
}

func (m *Memory) fail(op string) error {
	m.Calls = append(m.Calls, op)
	if err, ok := m.FailOn[op]; ok {
		return err
	}
	return nil
}

func (m *Memory) reindex(windowID int) {
	for i, t := range m.windows[windowID] {
		t.Index = i
	}
}

func (m *Memory) find(tabID int) (windowID, pos int, err error) {
	for wid, strip := range m.windows {
		for i, t := range strip {
			if t.ID == tabID {
				return wid, i, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("tab %d: %w", tabID, ErrTabNotFound)
}

func (m *Memory) resolve(windowID int) (int, error) {
	if windowID != types.CurrentWindow {
		if _, ok := m.windows[windowID]; !ok {
			return 0, fmt.Errorf("window %d: %w", windowID, ErrWindowNotFound)
		}
		return windowID, nil
	}
	ids := make([]int, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("current window: %w", ErrWindowNotFound)
	}
	sort.Ints(ids)
	return ids[0], nil
}

// ListTabs returns copies of the window's tabs in strip order.
func (m *Memory) ListTabs(_ context.Context, windowID int) ([]*types.Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailOn["listTabs"]; ok {
		return nil, err
	}
	wid, err := m.resolve(windowID)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Tab, 0, len(m.windows[wid]))
	for _, t := range m.windows[wid] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// ListGroups returns copies of the window's groups ordered by ID.
func (m *Memory) ListGroups(_ context.Context, windowID int) ([]*types.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailOn["listGroups"]; ok {
		return nil, err
	}
	wid, err := m.resolve(windowID)
	if err != nil {
		return nil, err
	}
	var out []*types.Group
	for _, g := range m.groups {
		if g.WindowID == wid {
			c := *g
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MoveTab moves a tab within its window. Indices past the end clamp to
// the end, as browsers do for -1.
func (m *Memory) MoveTab(_ context.Context, tabID, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("moveTab"); err != nil {
		return err
	}
	wid, pos, err := m.find(tabID)
	if err != nil {
		return err
	}
	strip := m.windows[wid]
	tab := strip[pos]
	strip = append(strip[:pos], strip[pos+1:]...)
	if index < 0 || index > len(strip) {
		index = len(strip)
	}
	strip = append(strip, nil)
	copy(strip[index+1:], strip[index:])
	strip[index] = tab
	m.windows[wid] = strip
	m.reindex(wid)
	return nil
}

// GroupTabs assigns tabs to a group and makes the group contiguous,
// anchored at the position of its first tab in strip order.
func (m *Memory) GroupTabs(_ context.Context, tabIDs []int, into int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("groupTabs"); err != nil {
		return 0, err
	}
	if len(tabIDs) == 0 {
		return 0, fmt.Errorf("group: no tabs")
	}
	wid, _, err := m.find(tabIDs[0])
	if err != nil {
		return 0, err
	}
	for _, id := range tabIDs[1:] {
		w, _, err := m.find(id)
		if err != nil {
			return 0, err
		}
		if w != wid {
			return 0, fmt.Errorf("group: tab %d is in window %d, not %d", id, w, wid)
		}
	}

	gid := into
	if into == types.NoGroup {
		gid = m.nextGrp
		m.nextGrp++
		m.groups[gid] = &types.Group{ID: gid, WindowID: wid, Color: types.DefaultColor}
	} else if _, ok := m.groups[into]; !ok {
		return 0, fmt.Errorf("group %d: %w", into, ErrGroupNotFound)
	}

	want := make(map[int]bool, len(tabIDs))
	for _, id := range tabIDs {
		want[id] = true
	}
	for _, t := range m.windows[wid] {
		if want[t.ID] {
			t.GroupID = gid
		}
	}
	m.gather(wid, gid)
	m.prune()
	return gid, nil
}

// gather pulls every tab of gid next to the group's first tab.
func (m *Memory) gather(windowID, gid int) {
	strip := m.windows[windowID]
	anchor := -1
	var members, rest []*types.Tab
	for i, t := range strip {
		if t.GroupID == gid {
			if anchor < 0 {
				anchor = i
			}
			members = append(members, t)
		} else {
			rest = append(rest, t)
		}
	}
	if anchor < 0 {
		return
	}
	out := make([]*types.Tab, 0, len(strip))
	out = append(out, rest[:anchor]...)
	out = append(out, members...)
	out = append(out, rest[anchor:]...)
	m.windows[windowID] = out
	m.reindex(windowID)
}

// prune drops groups that no longer hold any tab.
func (m *Memory) prune() {
	used := make(map[int]bool)
	for _, strip := range m.windows {
		for _, t := range strip {
			if t.Grouped() {
				used[t.GroupID] = true
			}
		}
	}
	for id := range m.groups {
		if !used[id] {
			delete(m.groups, id)
		}
	}
}

// UngroupTabs removes tabs from their groups without moving them.
func (m *Memory) UngroupTabs(_ context.Context, tabIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("ungroupTabs"); err != nil {
		return err
	}
	for _, id := range tabIDs {
		wid, pos, err := m.find(id)
		if err != nil {
			return err
		}
		m.windows[wid][pos].GroupID = types.NoGroup
	}
	m.prune()
	return nil
}

// RemoveTabs closes tabs.
func (m *Memory) RemoveTabs(_ context.Context, tabIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("removeTabs"); err != nil {
		return err
	}
	for _, id := range tabIDs {
		wid, pos, err := m.find(id)
		if err != nil {
			return err
		}
		strip := m.windows[wid]
		m.windows[wid] = append(strip[:pos], strip[pos+1:]...)
		m.reindex(wid)
	}
	m.prune()
	return nil
}

// CreateTab opens a tab at index, or at the end when index is negative.
func (m *Memory) CreateTab(_ context.Context, windowID int, url string, index int, active bool) (*types.Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("createTab"); err != nil {
		return nil, err
	}
	wid, err := m.resolve(windowID)
	if err != nil {
		return nil, err
	}
	tab := &types.Tab{ID: m.nextTab, WindowID: wid, URL: url, GroupID: types.NoGroup, Active: active}
	m.nextTab++

	strip := m.windows[wid]
	if index < 0 || index > len(strip) {
		index = len(strip)
	}
	if active {
		for _, t := range strip {
			t.Active = false
		}
	}
	strip = append(strip, nil)
	copy(strip[index+1:], strip[index:])
	strip[index] = tab
	m.windows[wid] = strip
	m.reindex(wid)

	c := *tab
	return &c, nil
}

// UpdateGroup applies the non-nil fields of u.
func (m *Memory) UpdateGroup(_ context.Context, groupID int, u GroupUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("updateGroup"); err != nil {
		return err
	}
	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound)
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Color != nil {
		if !u.Color.Valid() {
			return fmt.Errorf("group %d: %w", groupID, types.ErrUnknownColor)
		}
		g.Color = *u.Color
	}
	if u.Collapsed != nil {
		g.Collapsed = *u.Collapsed
	}
	return nil
}

// Snapshot returns copies of every window, ordered by window ID.
func (m *Memory) Snapshot(ctx context.Context) (*types.Snapshot, error) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Ints(ids)

	snap := &types.Snapshot{}
	for _, id := range ids {
		tabs, err := m.ListTabs(ctx, id)
		if err != nil {
			return nil, err
		}
		groups, err := m.ListGroups(ctx, id)
		if err != nil {
			return nil, err
		}
		snap.Windows = append(snap.Windows, &types.Window{ID: id, Tabs: tabs, Groups: groups})
	}
	return snap, nil
}
