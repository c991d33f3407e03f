package assembly

import (
	"context"
	"errors"
	"sync"

	"credence/internal/rbac"
	"credence/internal/types"
)

type mockAuthorizer struct {
	auths map[string]types.Authorization // key: group/user
}

func (m *mockAuthorizer) Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error) {
	a, ok := m.auths[groupID+"/"+userID]
	if !ok {
		return types.Authorization{}, rbac.ErrNotMember
	}
	return a, nil
}

type mockContextStore struct {
	groups   map[string]types.Group
	turns    []types.ChatTurn // newest first, as storage returns them
	tasks    map[string][]types.OpenItem // key: assignee, "" for everyone
	turnsErr error

	mu            sync.Mutex
	taskAssignees []string
}

func (m *mockContextStore) GetGroup(ctx context.Context, groupID string) (types.Group, error) {
	g, ok := m.groups[groupID]
	if !ok {
		return types.Group{}, types.ErrNotFound
	}
	return g, nil
}

func (m *mockContextStore) RecentTurns(ctx context.Context, groupID string, limit int) ([]types.ChatTurn, error) {
	if m.turnsErr != nil {
		return nil, m.turnsErr
	}
	out := append([]types.ChatTurn(nil), m.turns...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockContextStore) OpenTasks(ctx context.Context, groupID, assigneeID string, limit int) ([]types.OpenItem, error) {
	m.mu.Lock()
	m.taskAssignees = append(m.taskAssignees, assigneeID)
	m.mu.Unlock()
	return m.tasks[assigneeID], nil
}

type mockDocs struct {
	docs []types.DocumentRef
	err  error
}

func (m *mockDocs) FindInlineDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	return nil, nil
}

func (m *mockDocs) FindDocuments(ctx context.Context, groupID, candidate string, limit int) ([]types.DocumentRef, error) {
	return nil, nil
}

func (m *mockDocs) FindDocumentsLegacy(ctx context.Context, groupID, candidate string, limit int) ([]types.LegacyDocument, error) {
	return nil, nil
}

func (m *mockDocs) ListDocuments(ctx context.Context, groupID string, limit int) ([]types.DocumentRef, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.docs) > limit {
		return m.docs[:limit], nil
	}
	return m.docs, nil
}

type mockBlobs struct {
	blobs map[string]types.Blob
}

func (m *mockBlobs) Download(ctx context.Context, locator string) (types.Blob, error) {
	b, ok := m.blobs[locator]
	if !ok {
		return types.Blob{}, types.ErrNotFound
	}
	return b, nil
}

var errUploadDown = errors.New("upload service unavailable")

type mockModel struct {
	uploadErr error
	uploads   []string
}

func (m *mockModel) GenerateReply(ctx context.Context, message string, payload *types.ContextPayload) (string, error) {
	return "", errors.New("not used")
}

func (m *mockModel) Summarize(ctx context.Context, text, title string) (string, error) {
	return "", errors.New("not used")
}

func (m *mockModel) UploadAttachment(ctx context.Context, data []byte, mediaType, displayName string) (string, error) {
	m.uploads = append(m.uploads, displayName)
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	return "files/" + displayName, nil
}

type mockSummarizer struct {
	summary string
	err     error
	// failOn makes only the n-th call (1-based) fail with err.
	failOn int
	calls  int
	inputs []string
}

func (m *mockSummarizer) Summarize(ctx context.Context, text, title string) (string, error) {
	m.calls++
	m.inputs = append(m.inputs, text)
	if m.err != nil && (m.failOn == 0 || m.failOn == m.calls) {
		return "", m.err
	}
	return m.summary, nil
}
