// Package snapshot compares and restores recorded tab exports.
package snapshot

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/tabregel/internal/storage"
	"github.com/lotas/tabregel/internal/types"
)

// DiffEntry represents a single tab in a diff result.
type DiffEntry struct {
	URL   string
	Title string
	Group string // group title, or empty if ungrouped
}

// DiffResult holds the tabs that differ between two snapshots.
type DiffResult struct {
	RevFrom int         // export rev of the older side
	RevTo   int         // export rev of the newer side, 0 for the current tabs
	Added   []DiffEntry // in the newer side only
	Removed []DiffEntry // in the older side only
}

func entries(snap *types.Snapshot) map[string]DiffEntry {
	titles := make(map[int]string)
	for _, g := range snap.AllGroups() {
		titles[g.ID] = g.Title
	}
	out := make(map[string]DiffEntry)
	for _, tab := range snap.AllTabs() {
		if _, ok := out[tab.URL]; ok {
			continue
		}
		e := DiffEntry{URL: tab.URL, Title: tab.Title}
		if tab.Grouped() {
			e.Group = titles[tab.GroupID]
		}
		out[tab.URL] = e
	}
	return out
}

func only(a, b map[string]DiffEntry) []DiffEntry {
	var out []DiffEntry
	for url, e := range a {
		if _, ok := b[url]; !ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Diff compares two snapshots by URL. Entries are sorted by URL.
func Diff(before, after *types.Snapshot) *DiffResult {
	b, a := entries(before), entries(after)
	return &DiffResult{Added: only(a, b), Removed: only(b, a)}
}

// Same reports whether both snapshots hold the same set of URLs.
func Same(a, b *types.Snapshot) bool {
	d := Diff(a, b)
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Against compares export rev of source with the current tabs. A rev of 0
// means the latest export.
func Against(db *sql.DB, source string, rev int, current *types.Snapshot) (*DiffResult, error) {
	var from *storage.ExportFull
	var err error
	if rev == 0 {
		from, err = storage.GetLatestExport(db, source)
		if err == nil && from == nil {
			err = fmt.Errorf("no exports recorded for %q", source)
		}
	} else {
		from, err = storage.GetExport(db, source, rev)
	}
	if err != nil {
		return nil, err
	}
	d := Diff(from.Snapshot, current)
	d.RevFrom = from.Rev
	return d, nil
}

// Revisions compares two recorded exports of source.
func Revisions(db *sql.DB, source string, from, to int) (*DiffResult, error) {
	a, err := storage.GetExport(db, source, from)
	if err != nil {
		return nil, err
	}
	b, err := storage.GetExport(db, source, to)
	if err != nil {
		return nil, err
	}
	d := Diff(a.Snapshot, b.Snapshot)
	d.RevFrom, d.RevTo = from, to
	return d, nil
}

// FormatDiff returns a human-readable string representation of a DiffResult.
func FormatDiff(d *DiffResult) string {
	var sb strings.Builder

	if d.RevTo == 0 {
		fmt.Fprintf(&sb, "Diff of export #%d against current tabs\n", d.RevFrom)
	} else {
		fmt.Fprintf(&sb, "Diff of export #%d against export #%d\n", d.RevFrom, d.RevTo)
	}
	fmt.Fprintf(&sb, "Added: %d  Removed: %d\n", len(d.Added), len(d.Removed))

	write := func(sign string, list []DiffEntry) {
		for _, e := range list {
			if e.Group != "" {
				fmt.Fprintf(&sb, "  %s %s [%s]\n", sign, e.URL, e.Group)
			} else {
				fmt.Fprintf(&sb, "  %s %s\n", sign, e.URL)
			}
		}
	}
	if len(d.Added) > 0 {
		sb.WriteString("\n+ Added:\n")
		write("+", d.Added)
	}
	if len(d.Removed) > 0 {
		sb.WriteString("\n- Removed:\n")
		write("-", d.Removed)
	}

	if len(d.Added) == 0 && len(d.Removed) == 0 {
		sb.WriteString("\nNo changes.\n")
	}

	return sb.String()
}
