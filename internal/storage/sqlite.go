package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the state database at path and
// ensures the memory, identity and allocation tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables and indexes if missing.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
  id          TEXT PRIMARY KEY,
  context     TEXT NOT NULL,
  data        TEXT NOT NULL,
  tags        TEXT NOT NULL DEFAULT '[]',
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS memory_tags (
  memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
  tag       TEXT NOT NULL,
  PRIMARY KEY (memory_id, tag)
);`,
		`CREATE TABLE IF NOT EXISTS users (
  username       TEXT PRIMARY KEY,
  password_hash  TEXT NOT NULL,
  roles          TEXT NOT NULL DEFAULT '[]',
  created_at     TEXT NOT NULL,
  last_login_at  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS resource_allocations (
  id          TEXT PRIMARY KEY,
  owner       TEXT NOT NULL,
  cpu_cores   REAL NOT NULL DEFAULT 0,
  memory_mb   INTEGER NOT NULL DEFAULT 0,
  disk_mb     INTEGER NOT NULL DEFAULT 0,
  status      TEXT NOT NULL,
  reason      TEXT,
  created_at  TEXT NOT NULL,
  expires_at  TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS memories_context_created_at_idx ON memories(context, created_at);`,
		`CREATE INDEX IF NOT EXISTS memory_tags_tag_idx ON memory_tags(tag);`,
		`CREATE INDEX IF NOT EXISTS resource_allocations_status_expires_idx ON resource_allocations(status, expires_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
