package snapshot

import (
	"context"
	"fmt"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/types"
)

// Restore opens the tabs of snap whose URLs are not already open in window,
// appending them in snapshot order, then puts the reopened tabs back into
// groups with their recorded title, color and collapsed state. It returns
// the number of tabs opened.
func Restore(ctx context.Context, store browser.Store, snap *types.Snapshot, window int) (int, error) {
	open, err := store.ListTabs(ctx, window)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(open))
	for _, t := range open {
		have[t.URL] = true
	}

	groups := make(map[int]*types.Group)
	for _, g := range snap.AllGroups() {
		groups[g.ID] = g
	}
	members := make(map[int][]int)
	var order []int

	opened := 0
	for _, t := range snap.AllTabs() {
		if have[t.URL] {
			continue
		}
		have[t.URL] = true
		tab, err := store.CreateTab(ctx, window, t.URL, -1, false)
		if err != nil {
			return opened, fmt.Errorf("open %s: %w", t.URL, err)
		}
		opened++
		if _, ok := groups[t.GroupID]; !ok || !t.Grouped() {
			continue
		}
		if _, seen := members[t.GroupID]; !seen {
			order = append(order, t.GroupID)
		}
		members[t.GroupID] = append(members[t.GroupID], tab.ID)
	}

	for _, gid := range order {
		g := groups[gid]
		id, err := store.GroupTabs(ctx, members[gid], types.NoGroup)
		if err != nil {
			return opened, fmt.Errorf("group %q: %w", g.Title, err)
		}
		if err := store.UpdateGroup(ctx, id, browser.Full(g.Title, g.Color.OrDefault(), g.Collapsed)); err != nil {
			return opened, fmt.Errorf("update group %q: %w", g.Title, err)
		}
	}

	applog.Info("snapshot.restored", "tabs", opened, "groups", len(order))
	return opened, nil
}
