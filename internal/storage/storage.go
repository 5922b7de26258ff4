package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "rules",
		SQL: `
CREATE TABLE IF NOT EXISTS rules (
    position    INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    patterns    TEXT NOT NULL,
    color       TEXT NOT NULL DEFAULT 'grey',
    updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "exports with their groups and tabs",
		SQL: `
CREATE TABLE IF NOT EXISTS exports (
    id          INTEGER PRIMARY KEY,
    rev         INTEGER NOT NULL,
    source      TEXT NOT NULL,
    path        TEXT,
    format      TEXT NOT NULL,
    unpinned    BOOLEAN DEFAULT FALSE,
    created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    tab_count   INTEGER NOT NULL,
    UNIQUE(source, rev)
);
CREATE TABLE IF NOT EXISTS export_groups (
    id          INTEGER PRIMARY KEY,
    export_id   INTEGER NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
    browser_id  INTEGER NOT NULL,
    window_id   INTEGER NOT NULL DEFAULT 0,
    title       TEXT NOT NULL,
    color       TEXT,
    collapsed   BOOLEAN DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS export_tabs (
    id          INTEGER PRIMARY KEY,
    export_id   INTEGER NOT NULL REFERENCES exports(id) ON DELETE CASCADE,
    group_id    INTEGER REFERENCES export_groups(id),
    window_id   INTEGER NOT NULL DEFAULT 0,
    url         TEXT NOT NULL,
    title       TEXT NOT NULL,
    pinned      BOOLEAN DEFAULT FALSE,
    last_accessed DATETIME
);`,
	},
	{
		Version:     3,
		Description: "engine run history",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id           INTEGER PRIMARY KEY,
    op           TEXT NOT NULL,
    window_id    INTEGER NOT NULL,
    state        TEXT NOT NULL,
    moved        INTEGER NOT NULL DEFAULT 0,
    group_count  INTEGER NOT NULL DEFAULT 0,
    settle_rounds INTEGER NOT NULL DEFAULT 0,
    error        TEXT,
    started_at   DATETIME NOT NULL,
    finished_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies
// every migration not yet recorded there.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// DefaultDBPath returns the default database file path:
// ~/.local/share/tabregel/tabregel.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tabregel", "tabregel.db"), nil
}
