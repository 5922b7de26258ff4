package server

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lotas/tabregel/internal/types"
)

type wireTab struct {
	ID           int     `json:"id"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	LastAccessed float64 `json:"lastAccessed"`
	GroupID      *int    `json:"groupId"`
	WindowID     int     `json:"windowId"`
	Index        int     `json:"index"`
	Pinned       bool    `json:"pinned"`
	Active       bool    `json:"active"`
	FavIconURL   string  `json:"favIconUrl"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	WindowID  int    `json:"windowId"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

func (wt wireTab) tab() *types.Tab {
	t := &types.Tab{
		ID:         wt.ID,
		WindowID:   wt.WindowID,
		Index:      wt.Index,
		URL:        wt.URL,
		Title:      wt.Title,
		Pinned:     wt.Pinned,
		Active:     wt.Active,
		GroupID:    types.NoGroup,
		FavIconURL: wt.FavIconURL,
	}
	if wt.GroupID != nil && *wt.GroupID > 0 {
		t.GroupID = *wt.GroupID
	}
	if wt.LastAccessed > 0 {
		t.LastAccessed = time.UnixMilli(int64(wt.LastAccessed))
	}
	return t
}

func (wg wireGroup) group() *types.Group {
	color, err := types.ParseColor(wg.Color)
	if err != nil {
		color = types.DefaultColor
	}
	return &types.Group{ID: wg.ID, WindowID: wg.WindowID, Title: wg.Title, Color: color, Collapsed: wg.Collapsed}
}

// ParseTab converts a raw JSON tab into a Tab.
func ParseTab(raw json.RawMessage) (*types.Tab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return nil, err
	}
	return wt.tab(), nil
}

// ParseTabs converts a raw JSON tab list, ordered by index.
func ParseTabs(raw json.RawMessage) ([]*types.Tab, error) {
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]*types.Tab, 0, len(wts))
	for _, wt := range wts {
		tabs = append(tabs, wt.tab())
	}
	sort.SliceStable(tabs, func(i, j int) bool {
		if tabs[i].WindowID != tabs[j].WindowID {
			return tabs[i].WindowID < tabs[j].WindowID
		}
		return tabs[i].Index < tabs[j].Index
	})
	return tabs, nil
}

// ParseGroups converts a raw JSON group list. Unknown colors become the
// default color.
func ParseGroups(raw json.RawMessage) ([]*types.Group, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wgs []wireGroup
	if err := json.Unmarshal(raw, &wgs); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	groups := make([]*types.Group, 0, len(wgs))
	for _, wg := range wgs {
		groups = append(groups, wg.group())
	}
	return groups, nil
}

// ParseSnapshot converts a reply carrying tabs and groups of any number of
// windows into a Snapshot, one Window per window ID.
func ParseSnapshot(msg IncomingMsg) (*types.Snapshot, error) {
	tabs, err := ParseTabs(msg.Tabs)
	if err != nil {
		return nil, err
	}
	groups, err := ParseGroups(msg.Groups)
	if err != nil {
		return nil, err
	}

	snap := &types.Snapshot{TakenAt: time.Now()}
	windows := make(map[int]*types.Window)
	window := func(id int) *types.Window {
		w, ok := windows[id]
		if !ok {
			w = &types.Window{ID: id}
			windows[id] = w
			snap.Windows = append(snap.Windows, w)
		}
		return w
	}
	for _, t := range tabs {
		w := window(t.WindowID)
		w.Tabs = append(w.Tabs, t)
	}
	for _, g := range groups {
		w := window(g.WindowID)
		w.Groups = append(w.Groups, g)
	}
	return snap, nil
}
