package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"credence/internal/types"
)

// CreateTask inserts one task row.
func (s *SQLiteStore) CreateTask(ctx context.Context, t types.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = types.TaskPending
	}
	if t.Priority == "" {
		t.Priority = types.PriorityMedium
	}
	var due sql.NullTime
	if t.DueDate != nil {
		due = sql.NullTime{Time: t.DueDate.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, group_id, title, description, due_date, priority, status, created_by, assigned_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.GroupID, t.Title, t.Description, due, string(t.Priority), string(t.Status),
		t.CreatedBy, t.AssignedTo, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

// OpenTasks returns tasks that are not done, soonest due first; undated
// tasks sort last. An empty assigneeID returns every assignee's tasks.
func (s *SQLiteStore) OpenTasks(ctx context.Context, groupID, assigneeID string, limit int) ([]types.OpenItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.title, t.due_date, t.status, COALESCE(g.name, '')
		FROM tasks t LEFT JOIN groups g ON g.id = t.group_id
		WHERE t.group_id = ? AND t.status != ? AND (? = '' OR t.assigned_to = ?)
		ORDER BY t.due_date IS NULL, t.due_date ASC, t.created_at ASC
		LIMIT ?`,
		groupID, string(types.TaskDone), assigneeID, assigneeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query open tasks: %w", err)
	}
	defer rows.Close()

	var out []types.OpenItem
	for rows.Next() {
		var item types.OpenItem
		var due sql.NullTime
		if err := rows.Scan(&item.Title, &due, &item.Status, &item.GroupName); err != nil {
			return nil, fmt.Errorf("scan open task: %w", err)
		}
		if due.Valid {
			d := due.Time
			item.DueDate = &d
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListTasks returns every task in the group, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, groupID string) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, title, description, due_date, priority, status, created_by, assigned_to, created_at
		FROM tasks WHERE group_id = ?
		ORDER BY created_at DESC, id ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var t types.Task
		var due sql.NullTime
		if err := rows.Scan(&t.ID, &t.GroupID, &t.Title, &t.Description, &due, &t.Priority,
			&t.Status, &t.CreatedBy, &t.AssignedTo, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if due.Valid {
			d := due.Time
			t.DueDate = &d
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
