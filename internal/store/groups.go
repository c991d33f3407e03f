package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"credence/internal/types"
)

// CreateUser inserts a user. Email and handle are optional but unique.
func (s *SQLiteStore) CreateUser(ctx context.Context, u types.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, handle, name, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, nullIfEmpty(strings.ToLower(u.Email)), nullIfEmpty(u.Handle), u.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, err)
	}
	return nil
}

// FindUserByIdentifier matches an email (case-insensitive) or a handle, with
// or without a leading @.
func (s *SQLiteStore) FindUserByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	ident := strings.TrimSpace(identifier)
	handle := strings.TrimPrefix(ident, "@")
	if ident == "" {
		return types.User{}, types.ErrNotFound
	}

	var u types.User
	var email, h sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, handle, name FROM users
		 WHERE email = lower(?) OR handle = ?
		 ORDER BY CASE WHEN email = lower(?) THEN 0 ELSE 1 END
		 LIMIT 1`,
		ident, handle, ident).Scan(&u.ID, &email, &h, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return types.User{}, types.ErrNotFound
	}
	if err != nil {
		return types.User{}, fmt.Errorf("find user %q: %w", identifier, err)
	}
	u.Email, u.Handle = email.String, h.String
	return u, nil
}

// CreateGroup inserts a group.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g types.Group) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID, g.Name, g.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert group %s: %w", g.ID, err)
	}
	return nil
}

// GetGroup returns a group or types.ErrNotFound.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (types.Group, error) {
	var g types.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = ?`, groupID).
		Scan(&g.ID, &g.Name, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Group{}, types.ErrNotFound
	}
	if err != nil {
		return types.Group{}, fmt.Errorf("get group %s: %w", groupID, err)
	}
	return g, nil
}

// AddMember adds or updates a membership.
func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID string, role types.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET role = excluded.role`,
		groupID, userID, strings.ToLower(string(role)), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add member %s to %s: %w", userID, groupID, err)
	}
	return nil
}

const memberColumns = `m.group_id, m.user_id, m.role, COALESCE(u.email, ''), COALESCE(u.handle, ''), COALESCE(u.name, '')`

// GetMembership returns the caller's membership or types.ErrNotFound.
func (s *SQLiteStore) GetMembership(ctx context.Context, groupID, userID string) (types.Member, error) {
	var m types.Member
	err := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+`
		 FROM group_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ? AND m.user_id = ?`,
		groupID, userID).Scan(&m.GroupID, &m.UserID, &m.Role, &m.Email, &m.Handle, &m.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Member{}, types.ErrNotFound
	}
	if err != nil {
		return types.Member{}, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// ListMembers returns every member of the group ordered by join time.
func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]types.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberColumns+`
		 FROM group_members m LEFT JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = ?
		 ORDER BY m.joined_at ASC, m.user_id ASC`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []types.Member
	for rows.Next() {
		var m types.Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Email, &m.Handle, &m.Name); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetRolePermissions replaces the default permissions of role.
func (s *SQLiteStore) SetRolePermissions(ctx context.Context, role types.Role, perms []types.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role = ?`, string(role)); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO role_permissions (role, permission) VALUES (?, ?)`, string(role), string(p)); err != nil {
			return fmt.Errorf("insert role permission: %w", err)
		}
	}
	return tx.Commit()
}

// RolePermissions returns the default permissions of role.
func (s *SQLiteStore) RolePermissions(ctx context.Context, role types.Role) ([]types.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permission FROM role_permissions WHERE role = ? ORDER BY permission`, strings.ToLower(string(role)))
	if err != nil {
		return nil, fmt.Errorf("role permissions: %w", err)
	}
	defer rows.Close()

	var out []types.Permission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, types.Permission(p))
	}
	return out, rows.Err()
}

// SetGroupOverride stores a group-level override for one role.
func (s *SQLiteStore) SetGroupOverride(ctx context.Context, o types.PermissionOverride) error {
	perms, err := json.Marshal(o.Permissions)
	if err != nil {
		return err
	}
	if o.Permissions == nil {
		perms = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO group_permission_overrides (group_id, role, permissions, override_text) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id, role) DO UPDATE SET permissions = excluded.permissions, override_text = excluded.override_text`,
		o.GroupID, strings.ToLower(string(o.Role)), string(perms), o.Text)
	if err != nil {
		return fmt.Errorf("set group override: %w", err)
	}
	return nil
}

// GroupOverride returns the override for role in group or types.ErrNotFound.
func (s *SQLiteStore) GroupOverride(ctx context.Context, groupID string, role types.Role) (types.PermissionOverride, error) {
	o := types.PermissionOverride{GroupID: groupID, Role: role}
	var perms string
	err := s.db.QueryRowContext(ctx,
		`SELECT permissions, override_text FROM group_permission_overrides WHERE group_id = ? AND role = ?`,
		groupID, strings.ToLower(string(role))).Scan(&perms, &o.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PermissionOverride{}, types.ErrNotFound
	}
	if err != nil {
		return types.PermissionOverride{}, fmt.Errorf("group override: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &o.Permissions); err != nil {
		return types.PermissionOverride{}, fmt.Errorf("decode override permissions: %w", err)
	}
	return o, nil
}
