package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"credence/internal/types"
)

// titleMatch matches exact or substring titles, case-insensitively. instr
// avoids LIKE wildcard escaping for titles containing % or _.
const titleMatch = `(lower(title) = lower(?) OR instr(lower(title), lower(?)) > 0)`

// FindInlineDocuments returns inline-content documents matching candidate,
// most recent first.
func (s *SQLiteStore) FindInlineDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, media_type, size_bytes, uploaded_at, COALESCE(inline_text, '')
		FROM documents
		WHERE group_id = ? AND is_inline = 1 AND `+titleMatch+`
		ORDER BY uploaded_at DESC, id ASC
		LIMIT ?`,
		groupID, candidate, candidate, limit)
	if err != nil {
		return nil, fmt.Errorf("query inline documents: %w", err)
	}
	defer rows.Close()

	var out []types.DocumentRef
	for rows.Next() {
		d := types.DocumentRef{IsInlineContent: true}
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Title, &d.MediaType, &d.SizeBytes, &d.UploadedAt, &d.InlineText); err != nil {
			return nil, fmt.Errorf("scan inline document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindDocuments returns blob-backed documents matching candidate, exact
// title matches first, then most recent first.
func (s *SQLiteStore) FindDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	if s.legacyDocs.Load() {
		return nil, types.ErrLegacySchema
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, COALESCE(storage_path, ''), media_type, size_bytes, uploaded_at
		FROM documents
		WHERE group_id = ? AND is_inline = 0 AND `+titleMatch+`
		ORDER BY CASE WHEN lower(title) = lower(?) THEN 0 ELSE 1 END, uploaded_at DESC, id ASC
		LIMIT ?`,
		groupID, candidate, candidate, candidate, limit)
	if err != nil {
		if isMissingColumn(err) {
			s.refreshSchemaFlags()
			return nil, types.ErrLegacySchema
		}
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []types.DocumentRef
	for rows.Next() {
		var d types.DocumentRef
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Title, &d.StorageLocator, &d.MediaType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindDocumentsLegacy is FindDocuments for tables without storage_path.
func (s *SQLiteStore) FindDocumentsLegacy(ctx context.Context, groupID, candidate string, limit int) ([]types.LegacyDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, COALESCE(access_url, ''), media_type, size_bytes, uploaded_at
		FROM documents
		WHERE group_id = ? AND is_inline = 0 AND `+titleMatch+`
		ORDER BY CASE WHEN lower(title) = lower(?) THEN 0 ELSE 1 END, uploaded_at DESC, id ASC
		LIMIT ?`,
		groupID, candidate, candidate, candidate, limit)
	if err != nil {
		return nil, fmt.Errorf("query legacy documents: %w", err)
	}
	defer rows.Close()

	var out []types.LegacyDocument
	for rows.Next() {
		var d types.LegacyDocument
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Title, &d.AccessURL, &d.MediaType, &d.SizeBytes, &d.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan legacy document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDocuments returns the group's documents, most recent first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, groupID string, limit int) ([]types.DocumentRef, error) {
	locator := "COALESCE(storage_path, '')"
	if s.legacyDocs.Load() {
		locator = "''"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, `+locator+`, media_type, size_bytes, uploaded_at, is_inline
		FROM documents
		WHERE group_id = ?
		ORDER BY uploaded_at DESC, id ASC
		LIMIT ?`,
		groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []types.DocumentRef
	for rows.Next() {
		var d types.DocumentRef
		if err := rows.Scan(&d.ID, &d.GroupID, &d.Title, &d.StorageLocator, &d.MediaType, &d.SizeBytes, &d.UploadedAt, &d.IsInlineContent); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AddDocument inserts a document. Inline documents carry InlineText and no
// locator. A zero UploadedAt is set to now.
func (s *SQLiteStore) AddDocument(ctx context.Context, d types.DocumentRef, accessURL string) error {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	var inline sql.NullString
	if d.IsInlineContent {
		inline = sql.NullString{String: d.InlineText, Valid: true}
	}

	if s.legacyDocs.Load() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO documents (id, group_id, title, access_url, media_type, size_bytes, uploaded_at, is_inline, inline_text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.GroupID, d.Title, nullIfEmpty(accessURL), d.MediaType, d.SizeBytes, d.UploadedAt.UTC(), d.IsInlineContent, inline)
		if err != nil {
			return fmt.Errorf("insert legacy document: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, group_id, title, storage_path, access_url, media_type, size_bytes, uploaded_at, is_inline, inline_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.GroupID, d.Title, nullIfEmpty(d.StorageLocator), nullIfEmpty(accessURL), d.MediaType, d.SizeBytes, d.UploadedAt.UTC(), d.IsInlineContent, inline)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isMissingColumn(err error) bool {
	return strings.Contains(err.Error(), "no such column")
}
