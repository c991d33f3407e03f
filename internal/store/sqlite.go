// Package store implements the relational and blob collaborators on SQLite
// and the local filesystem.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"credence/internal/logging"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the relational store: users, groups, memberships,
// permissions, documents, tasks and chat turns.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	// legacyDocs is set when documents lacks storage_path.
	legacyDocs atomic.Bool
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	logging.Store("Opening SQLite store at %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreWarn("Failed to enable foreign keys: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	s.refreshSchemaFlags()

	logging.Store("SQLite store ready (legacy documents: %v)", s.legacyDocs.Load())
	return s, nil
}

// DB exposes the underlying handle for maintenance commands.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LegacyDocuments reports whether the documents table predates storage_path.
func (s *SQLiteStore) LegacyDocuments() bool {
	return s.legacyDocs.Load()
}

func (s *SQLiteStore) refreshSchemaFlags() {
	s.legacyDocs.Store(!columnExists(s.db, "documents", "storage_path"))
}

// initialize creates tables that do not exist yet. An existing documents
// table is left as is, so a legacy layout survives until migrated.
func (s *SQLiteStore) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE,
			handle TEXT UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS role_permissions (
			role TEXT NOT NULL,
			permission TEXT NOT NULL,
			PRIMARY KEY (role, permission)
		)`,
		`CREATE TABLE IF NOT EXISTS group_permission_overrides (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			override_text TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (group_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			title TEXT NOT NULL,
			storage_path TEXT,
			access_url TEXT,
			media_type TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			uploaded_at DATETIME NOT NULL,
			is_inline INTEGER NOT NULL DEFAULT 0,
			inline_text TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_group ON documents(group_id, uploaded_at)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			due_date DATETIME,
			priority TEXT NOT NULL DEFAULT 'medium',
			status TEXT NOT NULL DEFAULT 'pending',
			created_by TEXT NOT NULL,
			assigned_to TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_group ON tasks(group_id, status)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_group ON chat_messages(group_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS schema_versions (
			version INTEGER NOT NULL,
			applied_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
