package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"credence/internal/assembly"
	"credence/internal/command"
	"credence/internal/rbac"
	"credence/internal/retrieval"
	"credence/internal/summarizer"
	"credence/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	store *fakeStore
	blobs *fakeBlobs
	model *fakeModel
	svc   *Service
}

var (
	ana = types.User{ID: "u-ana", Email: "ana@example.com", Handle: "ana", Name: "Ana"}
	bo  = types.User{ID: "u-bo", Email: "bo@example.com", Handle: "bo", Name: "Bo"}
	cy  = types.User{ID: "u-cy", Email: "cy@example.com", Handle: "cy", Name: "Cy"}
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newFakeStore()
	store.groups["g1"] = types.Group{ID: "g1", Name: "Finance"}
	store.addMember("g1", ana, types.RoleAdmin)
	store.addMember("g1", bo, types.RoleMember)
	store.addMember("g1", cy, types.RoleMember)
	store.rolePerms[types.RoleMember] = []types.Permission{types.PermReadDocuments}

	blobs := &fakeBlobs{blobs: map[string]types.Blob{}}
	model := &fakeModel{reply: "Sure."}

	auth := rbac.NewAuthorizer(store)
	summ := summarizer.New(model, summarizer.Config{Timeout: time.Second})
	svc := NewService(Deps{
		Auth:      auth,
		Resolver:  retrieval.NewResolver(store, retrieval.ResolverConfig{}),
		Assembler: assembly.NewAssembler(auth, store, store, blobs, model, summ, assembly.Config{}),
		Model:     model,
		Executor:  command.NewExecutor(auth, store, store, store),
		ChatLog:   store,
	})
	return &harness{store: store, blobs: blobs, model: model, svc: svc}
}

func (h *harness) ask(t *testing.T, caller types.User, message string) *types.Response {
	t.Helper()
	resp, err := h.svc.Handle(context.Background(), Request{
		Caller:  types.Caller{UserID: caller.ID, Name: caller.Name, Email: caller.Email},
		GroupID: "g1",
		Message: message,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestScenarioExplicitFileAttached(t *testing.T) {
	h := newHarness(t)
	h.store.docs = append(h.store.docs, types.DocumentRef{
		ID: "d1", GroupID: "g1", Title: "Q3 report.pdf", StorageLocator: "g1/q3.pdf",
		MediaType: "application/pdf", UploadedAt: time.Now(),
	})
	h.blobs.blobs["g1/q3.pdf"] = types.Blob{Data: []byte("%PDF-1.4"), MediaType: "application/pdf"}
	h.model.reply = "The report shows revenue up 12%."

	resp := h.ask(t, bo, `file: "Q3 report.pdf"`)

	assert.Equal(t, "The report shows revenue up 12%.", resp.ResponseText)
	assert.False(t, resp.IsCommand)
	assert.Empty(t, resp.RequiresPermission)

	p := h.model.lastPayload()
	require.NotNil(t, p)
	require.Len(t, p.Attachments, 1)
	assert.Equal(t, "Q3 report.pdf", p.Attachments[0].Label)
	assert.Empty(t, p.Notes)
}

func TestScenarioImplicitFileNotFound(t *testing.T) {
	h := newHarness(t)
	h.model.reply = "I couldn't find budget.xlsx in this group."

	resp := h.ask(t, bo, "summarize budget.xlsx")

	assert.Equal(t, "I couldn't find budget.xlsx in this group.", resp.ResponseText)
	p := h.model.lastPayload()
	require.NotNil(t, p)
	assert.Empty(t, p.Snippets)
	assert.Empty(t, p.Attachments)
	require.Len(t, p.Notes, 1)
	assert.Equal(t, fmt.Sprintf(NotFoundNote, "budget.xlsx"), p.Notes[0])
}

func TestScenarioAssignmentDenied(t *testing.T) {
	h := newHarness(t)
	h.model.reply = `COMMAND: {"type":"task_assignment","title":"Review Q3","recipients":["ana@example.com"]}`

	resp := h.ask(t, bo, "assign the Q3 review to Ana")

	assert.False(t, resp.IsCommand)
	assert.Equal(t, types.RequiresPermissionDenied, resp.RequiresPermission)
	assert.Equal(t, command.DeniedText, resp.ResponseText)
	assert.Zero(t, h.store.taskCount())
}

func TestScenarioAssignAllDeduplicates(t *testing.T) {
	h := newHarness(t)
	h.model.reply = `COMMAND: {"type":"task_assignment","title":"Close the books","assign_to_all_members":true,"recipients":["bo@example.com","nobody@example.com"],"due_date":"2025-04-01"}`

	resp := h.ask(t, ana, "assign closing the books to everyone")

	assert.True(t, resp.IsCommand)
	assert.Contains(t, resp.ResponseText, "3 people")
	require.Equal(t, 3, h.store.taskCount())

	assignees := map[string]bool{}
	for _, task := range h.store.tasks {
		assignees[task.AssignedTo] = true
		assert.Equal(t, ana.ID, task.CreatedBy)
		assert.Equal(t, "g1", task.GroupID)
	}
	assert.Equal(t, map[string]bool{ana.ID: true, bo.ID: true, cy.ID: true}, assignees)
}

func TestScenarioMalformedCommand(t *testing.T) {
	h := newHarness(t)
	h.model.reply = "  COMMAND: {\"type\": \"task_assignment\", \"title\": \n"

	resp := h.ask(t, ana, "make a task")

	assert.False(t, resp.IsCommand)
	assert.Equal(t, "COMMAND: {\"type\": \"task_assignment\", \"title\":", resp.ResponseText)
	assert.Zero(t, h.store.taskCount())
}

func TestPermissionDeniedReply(t *testing.T) {
	h := newHarness(t)
	h.model.reply = "PERMISSION_DENIED: Only admins can do that."

	resp := h.ask(t, bo, "delete everything")

	assert.Equal(t, "Only admins can do that.", resp.ResponseText)
	assert.Equal(t, types.RequiresPermissionDenied, resp.RequiresPermission)
	assert.False(t, resp.IsCommand)
}

func TestListFilesBypassesModel(t *testing.T) {
	h := newHarness(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 55; i++ {
		h.store.docs = append(h.store.docs, types.DocumentRef{
			ID: fmt.Sprintf("d%d", i), GroupID: "g1", Title: fmt.Sprintf("doc-%02d.pdf", i),
			MediaType: "application/pdf", UploadedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	resp := h.ask(t, bo, "which files do we have?")

	assert.Nil(t, h.model.lastPayload(), "listing never calls the model")
	lines := strings.Split(resp.ResponseText, "\n")
	require.Len(t, lines, 51)
	assert.Equal(t, "This group has 50 files, most recent first:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1. doc-54.pdf"))
	assert.True(t, strings.HasPrefix(lines[50], "50. doc-05.pdf"))
}

func TestListFilesEmpty(t *testing.T) {
	h := newHarness(t)
	resp := h.ask(t, bo, "list files")
	assert.Equal(t, NoFilesText, resp.ResponseText)
}

func TestModelFailureApologizes(t *testing.T) {
	h := newHarness(t)
	h.model.replyErr = errors.New("503 from upstream")

	resp := h.ask(t, bo, "hello")
	assert.Equal(t, ApologyText, resp.ResponseText)
	assert.False(t, resp.IsCommand)
}

func TestChatLogging(t *testing.T) {
	h := newHarness(t)
	h.model.reply = "Hi Bo."

	h.ask(t, bo, "hello")

	require.Len(t, h.store.turns, 2)
	user, assistant := h.store.turns[0], h.store.turns[1]
	assert.Equal(t, types.TurnUser, user.Role)
	assert.Equal(t, "hello", user.Content)
	assert.Equal(t, types.TurnAssistant, assistant.Role)
	assert.Equal(t, "Hi Bo.", assistant.Content)
	assert.Equal(t, "none", assistant.Metadata["intent"])
	assert.Equal(t, "ok", assistant.Metadata["outcome"])
	assert.NotEmpty(t, assistant.Metadata["request_id"])

	// the next request sees the previous exchange, oldest first
	h.ask(t, bo, "and again")
	p := h.model.lastPayload()
	require.Len(t, p.RecentTurns, 2)
	assert.Equal(t, "hello", p.RecentTurns[0].Content)
	assert.Equal(t, "Hi Bo.", p.RecentTurns[1].Content)
}

func TestChatLogFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.store.appendErr = errors.New("disk full")
	h.model.reply = "Still here."

	resp := h.ask(t, bo, "hello")
	assert.Equal(t, "Still here.", resp.ResponseText)
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Handle(context.Background(), Request{Caller: types.Caller{UserID: bo.ID}, GroupID: "g1", Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.svc.Handle(context.Background(), Request{Caller: types.Caller{UserID: "stranger"}, GroupID: "g1", Message: "hi"})
	assert.ErrorIs(t, err, rbac.ErrNotMember)

	_, err = h.svc.Handle(context.Background(), Request{Caller: types.Caller{UserID: "stranger"}, GroupID: "g1", Message: "list files"})
	assert.ErrorIs(t, err, rbac.ErrNotMember)
}

func TestFormatListing(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	out := FormatListing([]types.DocumentRef{
		{Title: "Q3 Budget.xlsx", MediaType: "application/vnd.ms-excel", SizeBytes: 2048, UploadedAt: now.Add(-48 * time.Hour)},
		{Title: "Minutes", IsInlineContent: true},
	}, now)

	assert.Equal(t, "This group has 2 files, most recent first:\n"+
		"1. Q3 Budget.xlsx (application/vnd.ms-excel, 2.0 kB, uploaded 2 days ago)\n"+
		"2. Minutes (note)", out)
}
