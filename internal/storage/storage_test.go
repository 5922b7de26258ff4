package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "tabregel.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database file not found: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != len(migrations) {
		t.Errorf("expected %d migrations recorded, got %d", len(migrations), count)
	}
}

func TestOpenDB_IdempotentMigrations(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "idempotent.db")
	ctx := context.Background()

	db1, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("first OpenDB: %v", err)
	}
	if err := NewRuleStore(db1).SetRules(ctx, []types.Rule{{Name: "A", Patterns: []string{"*a*"}, Color: types.ColorRed}}); err != nil {
		t.Fatalf("SetRules: %v", err)
	}
	db1.Close()

	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("second OpenDB: %v", err)
	}
	defer db2.Close()

	got, err := NewRuleStore(db2).Rules(ctx)
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(got) != 1 || got[0].Name != "A" {
		t.Errorf("expected existing rules to survive reopening, got %+v", got)
	}
}

func TestDefaultDBPath(t *testing.T) {
	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if filepath.Base(p) != "tabregel.db" {
		t.Errorf("expected filename tabregel.db, got %s", filepath.Base(p))
	}
	if !filepath.IsAbs(p) {
		t.Errorf("expected absolute path, got %s", p)
	}
}

func TestRuleStoreReplacesList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	s := NewRuleStore(db)

	got, err := s.Rules(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	first := []types.Rule{
		{Name: "Google", Patterns: []string{"*google.com*", "*gmail.com*"}, Color: types.ColorBlue},
		{Name: "Code", Patterns: []string{"*github.com/*"}, Color: "nope"},
	}
	require.NoError(t, s.SetRules(ctx, first))

	got, err = s.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first[0], got[0])
	assert.Equal(t, types.ColorGrey, got[1].Color, "invalid colors are stored as the default")

	require.NoError(t, s.SetRules(ctx, []types.Rule{first[1], first[0]}))
	got, err = s.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Code", got[0].Name)
	assert.Equal(t, "Google", got[1].Name)

	err = s.SetRules(ctx, []types.Rule{{Name: "Broken"}})
	assert.ErrorIs(t, err, rules.ErrInvalidRule)
	got, _ = s.Rules(ctx)
	assert.Len(t, got, 2, "a rejected list leaves the old one in place")
}

func exportSnapshot() *types.Snapshot {
	accessed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &types.Snapshot{
		Windows: []*types.Window{
			{
				ID: 3,
				Tabs: []*types.Tab{
					{ID: 10, WindowID: 3, URL: "https://pinned.example", Title: "Pinned", Pinned: true, GroupID: types.NoGroup},
					{ID: 11, WindowID: 3, URL: "https://mail.google.com", Title: "Mail", GroupID: 70, LastAccessed: accessed},
					{ID: 12, WindowID: 3, URL: "https://x.com", Title: "X", GroupID: types.NoGroup},
				},
				Groups: []*types.Group{{ID: 70, WindowID: 3, Title: "Google_1", Color: types.ColorBlue, Collapsed: true}},
			},
			{
				ID:   4,
				Tabs: []*types.Tab{{ID: 20, WindowID: 4, URL: "https://go.dev", Title: "Go", GroupID: types.NoGroup}},
			},
		},
	}
}

func TestRecordAndGetExport(t *testing.T) {
	db := testDB(t)

	rev, err := RecordExport(db, ExportSummary{Source: "live", Path: "/tmp/tabs.html", Format: "html"}, exportSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 1, rev)

	rev, err = RecordExport(db, ExportSummary{Source: "live", Format: "json", Unpinned: true}, exportSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 2, rev)

	full, err := GetExport(db, "live", 1)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/tabs.html", full.Path)
	assert.Equal(t, 4, full.TabCount)
	require.Len(t, full.Snapshot.Windows, 2)

	w := full.Snapshot.Windows[0]
	assert.Equal(t, 3, w.ID)
	require.Len(t, w.Tabs, 3)
	require.Len(t, w.Groups, 1)
	assert.Equal(t, "Google_1", w.Groups[0].Title)
	assert.True(t, w.Groups[0].Collapsed)
	assert.Equal(t, 70, w.Tabs[1].GroupID)
	assert.True(t, w.Tabs[0].Pinned)
	assert.Equal(t, types.NoGroup, w.Tabs[2].GroupID)
	assert.True(t, w.Tabs[1].LastAccessed.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, w.Tabs[2].Index)

	latest, err := GetLatestExport(db, "live")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Rev)
	assert.True(t, latest.Unpinned)
	assert.Empty(t, latest.Path)

	none, err := GetLatestExport(db, "default")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = GetExport(db, "live", 9)
	assert.Error(t, err)
}

func TestListAndDeleteExports(t *testing.T) {
	db := testDB(t)
	for _, source := range []string{"live", "default", "live"} {
		_, err := RecordExport(db, ExportSummary{Source: source, Format: "html"}, exportSnapshot())
		require.NoError(t, err)
	}

	all, err := ListExports(db, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	live, err := ListExports(db, "live")
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, 2, live[0].Rev)

	require.NoError(t, DeleteExport(db, "live", 1))
	assert.Error(t, DeleteExport(db, "live", 1))

	var tabs int
	db.QueryRow("SELECT COUNT(*) FROM export_tabs").Scan(&tabs)
	assert.Equal(t, 8, tabs, "tabs of the deleted export are cascade-deleted")
}

func TestRecordExportRejectsDanglingGroup(t *testing.T) {
	db := testDB(t)
	snap := &types.Snapshot{Windows: []*types.Window{{ID: 1, Tabs: []*types.Tab{{ID: 1, URL: "https://a", GroupID: 99}}}}}
	_, err := RecordExport(db, ExportSummary{Source: "live", Format: "html"}, snap)
	assert.Error(t, err)

	all, err := ListExports(db, "")
	require.NoError(t, err)
	assert.Empty(t, all, "failed export is rolled back")
}

func TestRecordAndListRuns(t *testing.T) {
	db := testDB(t)
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	_, err := RecordRun(db, Run{Op: "group-by-rules", WindowID: 1, State: "done", Moved: 6, Groups: 2, SettleRounds: 1, StartedAt: start, FinishedAt: start.Add(time.Second)})
	require.NoError(t, err)
	_, err = RecordRun(db, Run{Op: "reverse", WindowID: 1, State: "failed", Error: "reverse: moving: boom", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute)})
	require.NoError(t, err)

	runs, err := ListRuns(db, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "reverse", runs[0].Op)
	assert.Equal(t, "reverse: moving: boom", runs[0].Error)
	assert.Equal(t, 2, runs[1].Groups)
	assert.Empty(t, runs[1].Error)

	limited, err := ListRuns(db, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
