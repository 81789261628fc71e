// Package store implements the relational data store gateway for Clarity Hub.
// All business tables (clients, events, notes, client history, conversations,
// reminder firing state) live in a single SQLite database opened in WAL mode.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection and exposes typed operations per table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Config holds store configuration.
type Config struct {
	// Path is the SQLite database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
}

// Open opens (or creates) the database and applies the schema.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/clarity.db"
	}
	if cfg.BusyTimeoutMs == 0 {
		cfg.BusyTimeoutMs = 5000
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=ON", cfg.Path, cfg.BusyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("database ready", "path", cfg.Path)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates all tables if missing. The schema is append-only: new
// deployments get the full schema, existing databases are left untouched.
func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('red','orange','yellow','green')),
			contact_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			project_type TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			budget TEXT NOT NULL DEFAULT '',
			start_date TEXT NOT NULL DEFAULT '',
			end_date TEXT NOT NULL DEFAULT '',
			manager TEXT NOT NULL DEFAULT '',
			pending_tasks TEXT NOT NULL DEFAULT '',
			incidents TEXT,
			last_contact TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('call','meeting','reminder')),
			start_at TEXT NOT NULL,
			reminder_minutes INTEGER,
			notes TEXT NOT NULL DEFAULT '',
			client_id TEXT,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_start_at ON events(start_at)`,
		`CREATE TABLE IF NOT EXISTS notes (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			visible_to TEXT NOT NULL CHECK (visible_to IN ('team','ceo','both')),
			status TEXT NOT NULL DEFAULT 'pending',
			target_employee TEXT,
			client_id TEXT,
			due_at TEXT,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS client_history (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('email','note','incident','event','call','meeting')),
			summary TEXT NOT NULL,
			visible_to TEXT NOT NULL DEFAULT 'both',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_client ON client_history(client_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user','assistant')),
			content TEXT NOT NULL,
			client_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminder_fired (
			day TEXT NOT NULL,
			event_id TEXT NOT NULL,
			PRIMARY KEY (day, event_id)
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// ---------- Time helpers ----------

// formatTime serializes a timestamp as RFC3339 UTC, the canonical storage format.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime deserializes an RFC3339 timestamp. Zero time on failure; rows
// written by this package always round-trip.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// nullString converts an optional string to sql.NullString ("" means absent
// only for columns documented as nullable; callers pass pointers there).
func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// fromNull converts a sql.NullString back into an optional string.
func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
