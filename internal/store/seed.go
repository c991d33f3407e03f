package store

import (
	"context"

	"credence/internal/logging"
	"credence/internal/types"
)

// DefaultRolePermissions is the stock permission table written by SeedDefaults.
func DefaultRolePermissions() map[types.Role][]types.Permission {
	all := []types.Permission{
		types.PermCreateAssignment,
		types.PermViewAllTasks,
		types.PermUploadDocuments,
		types.PermManageMembers,
		types.PermReadDocuments,
	}
	return map[types.Role][]types.Permission{
		types.RoleOwner:   all,
		types.RoleAdmin:   all,
		types.RoleManager: {types.PermCreateAssignment, types.PermViewAllTasks, types.PermUploadDocuments, types.PermReadDocuments},
		types.RoleMember:  {types.PermUploadDocuments, types.PermReadDocuments},
		types.RoleViewer:  {types.PermReadDocuments},
	}
}

// SeedDefaults writes the stock role permissions, replacing existing rows.
func (s *SQLiteStore) SeedDefaults(ctx context.Context) error {
	for role, perms := range DefaultRolePermissions() {
		if err := s.SetRolePermissions(ctx, role, perms); err != nil {
			return err
		}
		logging.StoreDebug("Seeded %d permissions for role %s", len(perms), role)
	}
	return nil
}
