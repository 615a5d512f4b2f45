// Package db is the SQLite storage layer of the gateway: the command
// history and the API tokens.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Database is one SQLite file shared by the history and token stores.
// Writes are serialized; the pool holds a single connection.
type Database struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewDatabase opens or creates the SQLite file at dbPath.
func NewDatabase(dbPath string) (*Database, error) {
	logger := log.With().Str("component", "db").Str("path", dbPath).Logger()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			logger.Warn().Err(err).Str("pragma", pragma).Msg("pragma failed")
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		component TEXT NOT NULL,
		version INTEGER NOT NULL,
		applied_at INTEGER NOT NULL,
		PRIMARY KEY (component, version)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare %s: %w", dbPath, err)
	}

	logger.Debug().Msg("database opened")
	return &Database{db: db, path: dbPath, logger: logger}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Exec runs a statement that returns no rows.
func (d *Database) Exec(query string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Exec(query, args...)
}

// Query runs a SELECT. Rows must be closed before the next statement.
func (d *Database) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.Query(query, args...)
}

// QueryRow runs a SELECT returning at most one row.
func (d *Database) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.db.QueryRow(query, args...)
}

// Migrate applies the steps of component that are not yet recorded in
// schema_migrations. Step i has version i+1; steps must only be appended.
// Each step runs in its own transaction.
func (d *Database) Migrate(component string, steps []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var current int
	err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?",
		component).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read %s schema version: %w", component, err)
	}

	for i := current; i < len(steps); i++ {
		version := i + 1
		if err := d.applyStep(component, version, steps[i]); err != nil {
			return fmt.Errorf("%s migration %d failed: %w", component, version, err)
		}
		d.logger.Info().Str("schema", component).Int("version", version).Msg("migration applied")
	}
	return nil
}

func (d *Database) applyStep(component string, version int, stmt string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (component, version, applied_at) VALUES (?, ?, ?)",
		component, version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// SchemaVersion returns the last applied migration of component.
func (d *Database) SchemaVersion(component string) (int, error) {
	var v int
	err := d.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?",
		component).Scan(&v)
	return v, err
}
