package analyzer

import (
	"sort"
	"time"

	"github.com/lotas/tabregel/internal/types"
)

// ByRecency returns a copy of tabs ordered by last access, most recent
// first. Tabs never accessed sort last, in their original order.
func ByRecency(tabs []*types.Tab) []*types.Tab {
	out := append([]*types.Tab(nil), tabs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastAccessed.After(out[j].LastAccessed)
	})
	return out
}

// StaleDays reports how many whole days ago the tab was last accessed.
// A tab with no access time reports -1.
func StaleDays(tab *types.Tab, now time.Time) int {
	if tab.LastAccessed.IsZero() {
		return -1
	}
	return int(now.Sub(tab.LastAccessed).Hours() / 24)
}
