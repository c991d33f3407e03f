package command

import (
	"context"
	"errors"
	"sync"

	"credence/internal/rbac"
	"credence/internal/types"
)

type mockAuthorizer struct {
	auths map[string]types.Authorization // key: group/user
	err   error
}

func (m *mockAuthorizer) Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error) {
	if m.err != nil {
		return types.Authorization{}, m.err
	}
	a, ok := m.auths[groupID+"/"+userID]
	if !ok {
		return types.Authorization{}, rbac.ErrNotMember
	}
	return a, nil
}

type mockGroups struct {
	groups map[string]types.Group
}

func (m *mockGroups) GetGroup(ctx context.Context, groupID string) (types.Group, error) {
	g, ok := m.groups[groupID]
	if !ok {
		return types.Group{}, types.ErrNotFound
	}
	return g, nil
}

type mockMembers struct {
	members map[string][]types.Member
	users   map[string]types.User // key: email or handle
	listErr error
}

func (m *mockMembers) ListMembers(ctx context.Context, groupID string) ([]types.Member, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.members[groupID], nil
}

func (m *mockMembers) FindUserByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	u, ok := m.users[identifier]
	if !ok {
		return types.User{}, types.ErrNotFound
	}
	return u, nil
}

type mockTasks struct {
	mu      sync.Mutex
	created []types.Task
	failAt  int // 1-based call that fails; 0 never
	calls   int
}

func (m *mockTasks) CreateTask(ctx context.Context, task types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAt > 0 && m.calls == m.failAt {
		return errors.New("constraint failed")
	}
	m.created = append(m.created, task)
	return nil
}
