// Package db provides the SQLite connection and schema for cloudsync.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Sync ledger - append-only history of what each reconciliation pass did
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			action TEXT NOT NULL,
			changes TEXT,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_ts ON sync_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_run ON sync_ledger(run_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_resource ON sync_ledger(kind, name, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_ledger table: %w", err)
	}

	// Remote resources - sandbox provider inventory keyed by (kind, id)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS remote_resources (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_remote_resources_kind ON remote_resources(kind);
	`)
	if err != nil {
		return fmt.Errorf("failed to create remote_resources table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
