package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lotas/tabregel/internal/types"
)

// ExportSummary holds the metadata for a recorded export.
type ExportSummary struct {
	ID        int64
	Rev       int
	Source    string // profile name or "live"
	Path      string // written file; empty for stdout
	Format    string
	Unpinned  bool // pinned tabs were left out
	CreatedAt time.Time
	TabCount  int
}

// ExportFull is an export with the tabs and groups it contained.
type ExportFull struct {
	ExportSummary
	Snapshot *types.Snapshot
}

// RecordExport stores an export and the snapshot it was rendered from in a
// single transaction. The rev number is auto-assigned per source. Returns
// the assigned rev number.
func RecordExport(db *sql.DB, summary ExportSummary, snap *types.Snapshot) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rev int
	err = tx.QueryRow("SELECT COALESCE(MAX(rev), 0) + 1 FROM exports WHERE source = ?", summary.Source).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("compute next rev: %w", err)
	}

	var pathVal interface{}
	if summary.Path != "" {
		pathVal = summary.Path
	}

	tabs := snap.AllTabs()
	res, err := tx.Exec(
		"INSERT INTO exports (rev, source, path, format, unpinned, tab_count) VALUES (?, ?, ?, ?, ?, ?)",
		rev, summary.Source, pathVal, summary.Format, summary.Unpinned, len(tabs),
	)
	if err != nil {
		return 0, fmt.Errorf("insert export: %w", err)
	}
	exportID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get export id: %w", err)
	}

	// Browser group IDs map to the rows they were stored under.
	groupRows := make(map[int]int64)
	for _, g := range snap.AllGroups() {
		res, err := tx.Exec(
			"INSERT INTO export_groups (export_id, browser_id, window_id, title, color, collapsed) VALUES (?, ?, ?, ?, ?, ?)",
			exportID, g.ID, g.WindowID, g.Title, string(g.Color), g.Collapsed,
		)
		if err != nil {
			return 0, fmt.Errorf("insert group %q: %w", g.Title, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("get group id: %w", err)
		}
		groupRows[g.ID] = rowID
	}

	for _, tab := range tabs {
		var groupID *int64
		if tab.Grouped() {
			rowID, ok := groupRows[tab.GroupID]
			if !ok {
				return 0, fmt.Errorf("tab %q references unknown group %d", tab.URL, tab.GroupID)
			}
			groupID = &rowID
		}
		var accessed interface{}
		if !tab.LastAccessed.IsZero() {
			accessed = tab.LastAccessed.UTC()
		}
		_, err := tx.Exec(
			"INSERT INTO export_tabs (export_id, group_id, window_id, url, title, pinned, last_accessed) VALUES (?, ?, ?, ?, ?, ?, ?)",
			exportID, groupID, tab.WindowID, tab.URL, tab.Title, tab.Pinned, accessed,
		)
		if err != nil {
			return 0, fmt.Errorf("insert tab %q: %w", tab.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return rev, nil
}

// ListExports returns exports ordered by creation time descending. An empty
// source lists every source.
func ListExports(db *sql.DB, source string) ([]ExportSummary, error) {
	query := "SELECT id, rev, source, path, format, unpinned, created_at, tab_count FROM exports"
	var args []interface{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var result []ExportSummary
	for rows.Next() {
		var e ExportSummary
		var path sql.NullString
		if err := rows.Scan(&e.ID, &e.Rev, &e.Source, &path, &e.Format, &e.Unpinned, &e.CreatedAt, &e.TabCount); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		if path.Valid {
			e.Path = path.String
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return result, nil
}

// GetExport loads an export by source and rev, rebuilding its snapshot.
// Group IDs in the rebuilt snapshot are the original browser IDs.
func GetExport(db *sql.DB, source string, rev int) (*ExportFull, error) {
	e := &ExportFull{}

	var path sql.NullString
	err := db.QueryRow(
		"SELECT id, rev, source, path, format, unpinned, created_at, tab_count FROM exports WHERE source = ? AND rev = ?",
		source, rev,
	).Scan(&e.ID, &e.Rev, &e.Source, &path, &e.Format, &e.Unpinned, &e.CreatedAt, &e.TabCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("export rev %d not found for source %q", rev, source)
		}
		return nil, fmt.Errorf("query export: %w", err)
	}
	if path.Valid {
		e.Path = path.String
	}

	snap := &types.Snapshot{TakenAt: e.CreatedAt}
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

	groupRows, err := db.Query(
		"SELECT id, browser_id, window_id, title, color, collapsed FROM export_groups WHERE export_id = ? ORDER BY id",
		e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer groupRows.Close()

	browserIDByRow := make(map[int64]int)
	for groupRows.Next() {
		var rowID int64
		var g types.Group
		var color sql.NullString
		if err := groupRows.Scan(&rowID, &g.ID, &g.WindowID, &g.Title, &color, &g.Collapsed); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.Color = types.Color(color.String).OrDefault()
		browserIDByRow[rowID] = g.ID
		w := window(g.WindowID)
		w.Groups = append(w.Groups, &g)
	}
	if err := groupRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	tabRows, err := db.Query(
		"SELECT id, group_id, window_id, url, title, pinned, last_accessed FROM export_tabs WHERE export_id = ? ORDER BY id",
		e.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer tabRows.Close()

	for tabRows.Next() {
		tab := &types.Tab{GroupID: types.NoGroup}
		var groupID *int64
		var accessed sql.NullTime
		if err := tabRows.Scan(&tab.ID, &groupID, &tab.WindowID, &tab.URL, &tab.Title, &tab.Pinned, &accessed); err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		if groupID != nil {
			if gid, ok := browserIDByRow[*groupID]; ok {
				tab.GroupID = gid
			}
		}
		if accessed.Valid {
			tab.LastAccessed = accessed.Time
		}
		w := window(tab.WindowID)
		tab.Index = len(w.Tabs)
		w.Tabs = append(w.Tabs, tab)
	}
	if err := tabRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tabs: %w", err)
	}

	e.Snapshot = snap
	return e, nil
}

// GetLatestExport returns the most recent export for a source.
// Returns nil, nil if there is none.
func GetLatestExport(db *sql.DB, source string) (*ExportFull, error) {
	var rev int
	err := db.QueryRow(
		"SELECT rev FROM exports WHERE source = ? ORDER BY rev DESC LIMIT 1",
		source,
	).Scan(&rev)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest rev: %w", err)
	}
	return GetExport(db, source, rev)
}

// DeleteExport removes an export by source and rev. Groups and tabs are
// cascade-deleted. Returns an error if the export does not exist.
func DeleteExport(db *sql.DB, source string, rev int) error {
	res, err := db.Exec("DELETE FROM exports WHERE source = ? AND rev = ?", source, rev)
	if err != nil {
		return fmt.Errorf("delete export: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("export rev %d not found for source %q", rev, source)
	}
	return nil
}
