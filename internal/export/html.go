package export

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lotas/tabregel/internal/analyzer"
	"github.com/lotas/tabregel/internal/types"
)

// VisitStorageKey is the localStorage key under which the exported page
// keeps per-URL visit counts.
const VisitStorageKey = "tabregelVisitedLinks"

// MarkerStorageKey holds the per-URL "downloaded" and "skipped" markers.
// A URL carries at most one of them.
const MarkerStorageKey = "tabregelMarkers"

//go:embed export.html.tmpl
var templates embed.FS

var page = template.Must(template.New("export.html.tmpl").ParseFS(templates, "export.html.tmpl"))

type pageTab struct {
	Index   int
	URL     string
	Title   string
	FavIcon string
	Decoded string
}

type pageSection struct {
	Title string
	Hex   string
	Tabs  []pageTab
}

type pageData struct {
	Title        string
	Saved        string
	TabCount     int
	GroupCount   int
	Recent       []pageTab
	Alphabetical []pageTab
	ByURL        []pageTab
	ByGroup      []pageSection
	ByDomain     []pageSection
	StorageKey   string
	MarkerKey    string
	Data         dataDoc
}

type dataDoc struct {
	SavedAt time.Time `json:"savedAt"`
	Profile string    `json:"profile,omitempty"`
	Tabs    []dataTab `json:"tabs"`
	Groups  []dataGrp `json:"groups"`
}

type dataTab struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	WindowID     int    `json:"windowId"`
	GroupID      int    `json:"groupId"`
	Pinned       bool   `json:"pinned,omitempty"`
	LastAccessed int64  `json:"lastAccessed,omitempty"`
}

type dataGrp struct {
	ID        int    `json:"id"`
	WindowID  int    `json:"windowId"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

// FileName names an HTML export of count tabs saved at t.
func FileName(count int, unpinned bool, t time.Time) string {
	if unpinned {
		return fmt.Sprintf("tabs-%d-unpinned-%s.html", count, t.Format("2006-01-02-15-04-05"))
	}
	return fmt.Sprintf("tabs-%d-%s.html", count, t.Format("2006-01-02-15-04-05"))
}

// DecodedURL returns the percent-decoded form of raw, or "" when decoding
// fails or changes nothing.
func DecodedURL(raw string) string {
	d, err := url.PathUnescape(raw)
	if err != nil || d == raw {
		return ""
	}
	return d
}

func entries(tabs []*types.Tab, numbered bool) []pageTab {
	out := make([]pageTab, 0, len(tabs))
	for i, t := range tabs {
		title := t.Title
		if title == "" {
			title = t.URL
		}
		e := pageTab{URL: t.URL, Title: title, FavIcon: t.FavIconURL, Decoded: DecodedURL(t.URL)}
		if numbered {
			e.Index = i + 1
		}
		out = append(out, e)
	}
	return out
}

func sortedBy(tabs []*types.Tab, less func(a, b *types.Tab) bool) []*types.Tab {
	out := append([]*types.Tab(nil), tabs...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// HTML writes a self-contained page listing every tab of snap in five
// views: most recent, alphabetical, by URL, by tab group and by domain.
func HTML(w io.Writer, snap *types.Snapshot, now time.Time) error {
	tabs := snap.AllTabs()
	groups := snap.AllGroups()

	data := pageData{
		Title:      "Saved Tabs - " + now.Format("2006-01-02 15:04:05"),
		Saved:      now.Format("2006-01-02 15:04:05"),
		TabCount:   len(tabs),
		StorageKey: VisitStorageKey,
		MarkerKey:  MarkerStorageKey,
		Data:       dataDoc{SavedAt: now, Profile: snap.Profile.Name, Tabs: []dataTab{}, Groups: []dataGrp{}},
	}

	data.Recent = entries(analyzer.ByRecency(tabs), false)
	data.Alphabetical = entries(sortedBy(tabs, func(a, b *types.Tab) bool {
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	}), false)
	data.ByURL = entries(sortedBy(tabs, func(a, b *types.Tab) bool { return a.URL < b.URL }), false)

	for _, s := range Sections(tabs, groups) {
		if s.GroupID != types.NoGroup {
			data.GroupCount++
		}
		data.ByGroup = append(data.ByGroup, pageSection{
			Title: fmt.Sprintf("%s (%d tabs)", s.Title, len(s.Tabs)),
			Hex:   hexOf(s),
			Tabs:  entries(s.Tabs, true),
		})
	}

	byDomain := make(map[string][]*types.Tab)
	for _, t := range tabs {
		d := analyzer.BaseDomain(t.URL)
		byDomain[d] = append(byDomain[d], t)
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		data.ByDomain = append(data.ByDomain, pageSection{
			Title: fmt.Sprintf("%s (%d tabs)", d, len(byDomain[d])),
			Tabs:  entries(analyzer.ByRecency(byDomain[d]), false),
		})
	}

	for _, t := range tabs {
		dt := dataTab{URL: t.URL, Title: t.Title, WindowID: t.WindowID, GroupID: t.GroupID, Pinned: t.Pinned}
		if !t.LastAccessed.IsZero() {
			dt.LastAccessed = t.LastAccessed.UnixMilli()
		}
		data.Data.Tabs = append(data.Data.Tabs, dt)
	}
	for _, g := range groups {
		data.Data.Groups = append(data.Data.Groups, dataGrp{
			ID: g.ID, WindowID: g.WindowID, Title: g.Title, Color: string(g.Color.OrDefault()), Collapsed: g.Collapsed,
		})
	}

	return page.Execute(w, data)
}

func hexOf(s Section) string {
	if s.GroupID == types.NoGroup {
		return ""
	}
	return s.Color.Hex()
}
