package export

import (
	"encoding/json"
	"time"

	"github.com/lotas/tabregel/internal/analyzer"
	"github.com/lotas/tabregel/internal/types"
)

type jsonExport struct {
	Profile    string       `json:"profile,omitempty"`
	ExportedAt time.Time    `json:"exported_at"`
	TabCount   int          `json:"tab_count"`
	Windows    []jsonWindow `json:"windows"`
}

type jsonWindow struct {
	ID     int         `json:"id"`
	Groups []jsonGroup `json:"groups"`
}

type jsonGroup struct {
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
	Tabs  []jsonTab `json:"tabs"`
}

type jsonTab struct {
	Title              string     `json:"title"`
	URL                string     `json:"url"`
	Domain             string     `json:"domain"`
	Pinned             bool       `json:"pinned,omitempty"`
	LastAccessed       *time.Time `json:"last_accessed,omitempty"`
	LastAccessedPretty string     `json:"last_accessed_pretty,omitempty"`
	LastAccessedDays   *int       `json:"last_accessed_days,omitempty"`
}

// JSON formats a snapshot as a JSON document, one entry per window with
// its tabs split into group sections.
func JSON(snap *types.Snapshot, now time.Time) (string, error) {
	out := jsonExport{
		Profile:    snap.Profile.Name,
		ExportedAt: now,
		Windows:    make([]jsonWindow, 0, len(snap.Windows)),
	}

	for _, w := range snap.Windows {
		win := jsonWindow{ID: w.ID, Groups: []jsonGroup{}}
		for _, s := range Sections(w.Tabs, w.Groups) {
			group := jsonGroup{
				Name:  s.Title,
				Color: string(s.Color),
				Tabs:  make([]jsonTab, 0, len(s.Tabs)),
			}
			for _, tab := range s.Tabs {
				jt := jsonTab{
					Title:  tab.Title,
					URL:    tab.URL,
					Domain: analyzer.BaseDomain(tab.URL),
					Pinned: tab.Pinned,
				}
				if !tab.LastAccessed.IsZero() {
					at := tab.LastAccessed
					days := analyzer.StaleDays(tab, now)
					jt.LastAccessed = &at
					jt.LastAccessedPretty = relativeTime(at, now)
					jt.LastAccessedDays = &days
				}
				group.Tabs = append(group.Tabs, jt)
				out.TabCount++
			}
			win.Groups = append(win.Groups, group)
		}
		out.Windows = append(out.Windows, win)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
