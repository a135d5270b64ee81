// ABOUTME: Local SQLite database connection management and initialization
// ABOUTME: Opens the hubsync store in WAL mode and applies the platform and bookkeeping schema
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// WAL journal, foreign keys on, 5s busy wait.
const sqliteOptions = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

// OpenDatabase opens (creating if needed) the sqlite file at path and initializes its schema.
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// Single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}
