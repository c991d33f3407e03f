// Package rbac computes a caller's effective permissions in a group.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"credence/internal/logging"
	"credence/internal/types"
)

// ErrNotMember is returned when the caller has no membership in the group.
var ErrNotMember = errors.New("caller is not a member of the group")

// Authorizer resolves two-tier authorizations from the permission store.
type Authorizer struct {
	store types.PermissionStore
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(store types.PermissionStore) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize returns the caller's authorization in group. Role defaults are
// replaced by a group override's enumerated permissions when it has any; the
// override's free text is carried separately and never grants anything.
func (a *Authorizer) Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error) {
	member, err := a.store.GetMembership(ctx, groupID, userID)
	if errors.Is(err, types.ErrNotFound) {
		return types.Authorization{}, fmt.Errorf("%w: user %s, group %s", ErrNotMember, userID, groupID)
	}
	if err != nil {
		return types.Authorization{}, fmt.Errorf("get membership: %w", err)
	}

	perms, err := a.store.RolePermissions(ctx, member.Role)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return types.Authorization{}, fmt.Errorf("role permissions for %s: %w", member.Role, err)
	}

	auth := types.Authorization{Role: member.Role, Enumerated: perms}

	override, err := a.store.GroupOverride(ctx, groupID, member.Role)
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		return types.Authorization{}, fmt.Errorf("group override: %w", err)
	default:
		if len(override.Permissions) > 0 {
			auth.Enumerated = override.Permissions
		}
		auth.Override = override.Text
	}

	auth.Enumerated = dedupe(auth.Enumerated)
	logging.Get(logging.CategoryCommand).Debug("authorized %s in %s as %s with %v", userID, groupID, auth.Role, auth.SortedPermissions())
	return auth, nil
}

func dedupe(perms []types.Permission) []types.Permission {
	seen := make(map[types.Permission]bool, len(perms))
	out := make([]types.Permission, 0, len(perms))
	for _, p := range perms {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
