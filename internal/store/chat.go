package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"credence/internal/logging"
	"credence/internal/types"

	"github.com/google/uuid"
)

// AppendTurn appends a chat turn. Missing ID and CreatedAt are filled in.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn types.ChatTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	var meta sql.NullString
	if len(turn.Metadata) > 0 {
		b, err := json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("encode turn metadata: %w", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, group_id, user_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.GroupID, turn.UserID, string(turn.Role), turn.Content, meta, turn.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit turns, newest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, groupID string, limit int) ([]types.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, user_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE group_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	var out []types.ChatTurn
	for rows.Next() {
		var t types.ChatTurn
		var meta sql.NullString
		if err := rows.Scan(&t.ID, &t.GroupID, &t.UserID, &t.Role, &t.Content, &meta, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
				logging.StoreWarn("Ignoring unreadable metadata on turn %s: %v", t.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
