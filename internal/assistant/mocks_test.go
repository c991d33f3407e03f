package assistant

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"credence/internal/types"
)

// fakeStore is an in-memory relational store covering every store interface
// the pipeline consumes.
type fakeStore struct {
	mu sync.Mutex

	groups    map[string]types.Group
	users     []types.User
	members   []types.Member
	rolePerms map[types.Role][]types.Permission
	docs      []types.DocumentRef
	tasks     []types.Task
	turns     []types.ChatTurn

	appendErr error
	taskErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:    map[string]types.Group{},
		rolePerms: map[types.Role][]types.Permission{},
	}
}

func (f *fakeStore) addMember(groupID string, u types.User, role types.Role) {
	f.users = append(f.users, u)
	f.members = append(f.members, types.Member{
		GroupID: groupID, UserID: u.ID, Role: role, Email: u.Email, Handle: u.Handle, Name: u.Name,
	})
}

func (f *fakeStore) taskCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func matches(title, candidate string) bool {
	t, c := strings.ToLower(title), strings.ToLower(candidate)
	return t == c || strings.Contains(t, c)
}

func (f *fakeStore) FindInlineDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	var out []types.DocumentRef
	for _, d := range f.docs {
		if d.GroupID == groupID && d.IsInlineContent && matches(d.Title, candidate) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) FindDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	var out []types.DocumentRef
	for _, d := range f.docs {
		if d.GroupID == groupID && !d.IsInlineContent && matches(d.Title, candidate) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (f *fakeStore) FindDocumentsLegacy(ctx context.Context, groupID, candidate string, limit int) ([]types.LegacyDocument, error) {
	return nil, errors.New("not legacy")
}

func (f *fakeStore) ListDocuments(ctx context.Context, groupID string, limit int) ([]types.DocumentRef, error) {
	var out []types.DocumentRef
	for _, d := range f.docs {
		if d.GroupID == groupID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetGroup(ctx context.Context, groupID string) (types.Group, error) {
	g, ok := f.groups[groupID]
	if !ok {
		return types.Group{}, types.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) RecentTurns(ctx context.Context, groupID string, limit int) ([]types.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ChatTurn
	for i := len(f.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.turns[i].GroupID == groupID {
			out = append(out, f.turns[i])
		}
	}
	return out, nil
}

func (f *fakeStore) OpenTasks(ctx context.Context, groupID, assigneeID string, limit int) ([]types.OpenItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.OpenItem
	for _, t := range f.tasks {
		if t.GroupID == groupID && (assigneeID == "" || t.AssignedTo == assigneeID) {
			out = append(out, types.OpenItem{Title: t.Title, DueDate: t.DueDate, Status: t.Status})
		}
	}
	return out, nil
}

func (f *fakeStore) GetMembership(ctx context.Context, groupID, userID string) (types.Member, error) {
	for _, m := range f.members {
		if m.GroupID == groupID && m.UserID == userID {
			return m, nil
		}
	}
	return types.Member{}, types.ErrNotFound
}

func (f *fakeStore) RolePermissions(ctx context.Context, role types.Role) ([]types.Permission, error) {
	return f.rolePerms[role], nil
}

func (f *fakeStore) GroupOverride(ctx context.Context, groupID string, role types.Role) (types.PermissionOverride, error) {
	return types.PermissionOverride{}, types.ErrNotFound
}

func (f *fakeStore) ListMembers(ctx context.Context, groupID string) ([]types.Member, error) {
	var out []types.Member
	for _, m := range f.members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) FindUserByIdentifier(ctx context.Context, identifier string) (types.User, error) {
	id := strings.TrimPrefix(identifier, "@")
	for _, u := range f.users {
		if strings.EqualFold(u.Email, identifier) || u.Handle == id {
			return u, nil
		}
	}
	return types.User{}, types.ErrNotFound
}

func (f *fakeStore) CreateTask(ctx context.Context, task types.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taskErr != nil {
		return f.taskErr
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeStore) AppendTurn(ctx context.Context, turn types.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.turns = append(f.turns, turn)
	return nil
}

type fakeBlobs struct {
	blobs map[string]types.Blob
}

func (f *fakeBlobs) Download(ctx context.Context, locator string) (types.Blob, error) {
	b, ok := f.blobs[locator]
	if !ok {
		return types.Blob{}, types.ErrNotFound
	}
	return b, nil
}

// fakeModel replies with a scripted answer and records the payload it saw.
type fakeModel struct {
	mu sync.Mutex

	reply     string
	replyErr  error
	summary   string
	uploadErr error

	payloads []*types.ContextPayload
	uploads  []string
}

func (m *fakeModel) GenerateReply(ctx context.Context, message string, payload *types.ContextPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	if m.replyErr != nil {
		return "", m.replyErr
	}
	return m.reply, nil
}

func (m *fakeModel) Summarize(ctx context.Context, text, title string) (string, error) {
	if m.summary == "" {
		return "", errors.New("no summary scripted")
	}
	return m.summary, nil
}

func (m *fakeModel) UploadAttachment(ctx context.Context, data []byte, mediaType, displayName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, displayName)
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	return "files/" + displayName, nil
}

func (m *fakeModel) lastPayload() *types.ContextPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil
	}
	return m.payloads[len(m.payloads)-1]
}
