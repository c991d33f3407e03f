package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"credence/internal/logging"
)

// Schema versions:
// v1: documents addressed by access_url only
// v2: documents.storage_path holds the blob locator
const CurrentSchemaVersion = 2

// Migration adds one column to an existing table.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations are applied on open to tables that predate the columns.
// documents.storage_path is deliberately absent: legacy document tables stay
// readable through the access-URL query until UpgradeDocuments runs.
var pendingMigrations = []Migration{
	{"documents", "access_url", "TEXT"},
	{"documents", "is_inline", "INTEGER NOT NULL DEFAULT 0"},
	{"documents", "inline_text", "TEXT"},
	{"documents", "size_bytes", "INTEGER NOT NULL DEFAULT 0"},
	{"tasks", "priority", "TEXT NOT NULL DEFAULT 'medium'"},
	{"chat_messages", "metadata", "TEXT"},
}

// RunMigrations applies column migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied, skipped := 0, 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skipped++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skipped++
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s: %w", m.Table, m.Column, err)
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	logging.StoreDebug("Schema migrations complete: applied=%d, skipped=%d", applied, skipped)
	return nil
}

// UpgradeResult reports what UpgradeDocuments did.
type UpgradeResult struct {
	FromVersion  int
	ToVersion    int
	Backfilled   int
	Unresolvable int
	Duration     time.Duration
}

// UpgradeDocuments adds documents.storage_path to a legacy table and fills it
// from access_url using derive. Rows whose URL yields no locator keep NULL and
// are counted as unresolvable.
func (s *SQLiteStore) UpgradeDocuments(ctx context.Context, derive func(accessURL string) string) (*UpgradeResult, error) {
	start := time.Now()
	res := &UpgradeResult{FromVersion: GetSchemaVersion(s.db)}

	if !columnExists(s.db, "documents", "storage_path") {
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE documents ADD COLUMN storage_path TEXT"); err != nil {
			return nil, fmt.Errorf("add storage_path: %w", err)
		}
		logging.Store("Migration applied: added documents.storage_path")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(access_url, '') FROM documents
		 WHERE is_inline = 0 AND (storage_path IS NULL OR storage_path = '')`)
	if err != nil {
		return nil, fmt.Errorf("scan legacy documents: %w", err)
	}
	type pending struct{ id, url string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.url); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan legacy document: %w", err)
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin backfill: %w", err)
	}
	defer tx.Rollback()

	for _, p := range todo {
		locator := derive(p.url)
		if locator == "" {
			res.Unresolvable++
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET storage_path = ? WHERE id = ?", locator, p.id); err != nil {
			return nil, fmt.Errorf("backfill %s: %w", p.id, err)
		}
		res.Backfilled++
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)", CurrentSchemaVersion, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit backfill: %w", err)
	}

	s.refreshSchemaFlags()
	res.ToVersion = CurrentSchemaVersion
	res.Duration = time.Since(start)
	logging.Store("Documents upgraded v%d -> v%d: backfilled=%d unresolvable=%d", res.FromVersion, res.ToVersion, res.Backfilled, res.Unresolvable)
	return res, nil
}

// GetSchemaVersion returns the recorded schema version, or infers it from the
// documents table.
func GetSchemaVersion(db *sql.DB) int {
	if tableExists(db, "schema_versions") {
		var version int
		err := db.QueryRow("SELECT version FROM schema_versions ORDER BY applied_at DESC LIMIT 1").Scan(&version)
		if err == nil {
			return version
		}
	}
	if !tableExists(db, "documents") {
		return 0
	}
	if columnExists(db, "documents", "storage_path") {
		return 2
	}
	return 1
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		logging.StoreDebug("PRAGMA table_info(%s) failed: %v", table, err)
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		logging.StoreDebug("Table existence check failed for %s: %v", table, err)
		return false
	}
	return count > 0
}
