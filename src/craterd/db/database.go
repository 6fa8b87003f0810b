// Package db provides database functionality for craterd with in-memory
// SQLite and automatic persistence to disk on shutdown.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/craterbuild/crater/src/common/paths"
)

// Database wraps the SQLite connection with persistence capabilities
type Database struct {
	db           *sql.DB
	persistPath  string
	mu           sync.RWMutex
	shutdownOnce sync.Once
}

// Config holds the database configuration
type Config struct {
	// PersistPath is the file path where the database will be saved on shutdown
	PersistPath string
	// LoadOnStart determines whether to load existing data from disk on startup
	LoadOnStart bool
}

// DefaultConfig returns a default database configuration
func DefaultConfig() Config {
	return Config{
		PersistPath: "~/.craterd/craterd.db",
		LoadOnStart: true,
	}
}

// New creates a new in-memory database with persistence support
func New(cfg Config) (*Database, error) {
	persistPath := paths.Expand(cfg.PersistPath)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &Database{
		db:          db,
		persistPath: persistPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.LoadOnStart && persistPath != "" {
		if _, err := os.Stat(persistPath); err == nil {
			if err := database.LoadFromDisk(); err != nil {
				// Start fresh rather than refusing to start
				fmt.Fprintf(os.Stderr, "warning: failed to load database from disk: %v\n", err)
			}
		}
	}

	// Signal handling for graceful shutdown is managed by the server
	// (core/server.go) to avoid racing multiple signal handlers.

	return database, nil
}

// initSchema creates the database tables
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS build_jobs (
		id TEXT PRIMARY KEY,
		owner TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		phase TEXT,
		component TEXT NOT NULL,
		version TEXT NOT NULL,
		release TEXT,
		platforms TEXT NOT NULL,
		scratch BOOLEAN NOT NULL DEFAULT 0,
		isolated BOOLEAN NOT NULL DEFAULT 0,
		params_snapshot TEXT NOT NULL,
		document_key TEXT,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_build_jobs_status ON build_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_build_jobs_owner ON build_jobs(owner);
	CREATE INDEX IF NOT EXISTS idx_build_jobs_component ON build_jobs(component);

	CREATE TABLE IF NOT EXISTS build_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		phase TEXT,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (build_id) REFERENCES build_jobs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_build_logs_build_id ON build_logs(build_id);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// DB returns the underlying sql.DB for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Shutdown persists the database to disk and closes the connection.
// Safe to call more than once; only the first call does the work.
func (d *Database) Shutdown() error {
	var shutdownErr error

	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		if d.persistPath != "" {
			shutdownErr = d.persistToDisk()
		}
		closeErr := d.db.Close()

		switch {
		case shutdownErr != nil && closeErr != nil:
			shutdownErr = fmt.Errorf("%v; also failed to close database: %w", shutdownErr, closeErr)
		case closeErr != nil:
			shutdownErr = fmt.Errorf("failed to close database: %w", closeErr)
		}
	})

	return shutdownErr
}

// persistToDisk snapshots the in-memory database to the configured file.
// VACUUM INTO produces a consistent copy; the rename makes the swap atomic
// so a crash mid-write never corrupts the previous snapshot.
func (d *Database) persistToDisk() error {
	if d.persistPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.persistPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	staging := d.persistPath + ".tmp"
	os.Remove(staging)
	if _, err := d.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", staging)); err != nil {
		os.Remove(staging)
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	if err := os.Rename(staging, d.persistPath); err != nil {
		os.Remove(staging)
		return fmt.Errorf("failed to replace database snapshot: %w", err)
	}
	return nil
}

// LoadFromDisk copies rows from the persisted snapshot into memory by
// attaching it as a secondary database
func (d *Database) LoadFromDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.persistPath == "" {
		return nil
	}

	if _, err := d.db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS snapshot", d.persistPath)); err != nil {
		return fmt.Errorf("failed to attach database snapshot: %w", err)
	}
	defer d.db.Exec("DETACH DATABASE snapshot")

	for _, table := range []string{"settings", "build_jobs", "build_logs"} {
		if !d.snapshotHasTable(table) {
			continue
		}
		if _, err := d.db.Exec(fmt.Sprintf(
			"INSERT OR REPLACE INTO %s SELECT * FROM snapshot.%s", table, table)); err != nil {
			// Table structure may have changed between versions
			continue
		}
	}

	return nil
}

func (d *Database) snapshotHasTable(name string) bool {
	var n int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM snapshot.sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	return err == nil && n > 0
}

// SaveToDisk manually triggers a snapshot (for periodic backups)
func (d *Database) SaveToDisk() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistToDisk()
}

// GetSetting retrieves a setting value by key
func (d *Database) GetSetting(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting stores or updates a setting value
func (d *Database) SetSetting(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}
