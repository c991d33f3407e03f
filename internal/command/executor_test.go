package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"credence/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	auth    *mockAuthorizer
	groups  *mockGroups
	members *mockMembers
	tasks   *mockTasks
	exec    *Executor
}

func newFixture() *fixture {
	f := &fixture{
		auth: &mockAuthorizer{auths: map[string]types.Authorization{
			"g1/lead":   {Role: types.RoleManager},
			"g1/ana":    {Role: types.RoleMember},
			"g1/bo":     {Role: types.RoleMember, Enumerated: []types.Permission{types.PermCreateAssignment}},
			"g2/lead":   {Role: types.RoleAdmin},
			"g3/lead":   {Role: types.RoleViewer},
			"g1/viewer": {Role: types.RoleViewer, Override: "viewers may assign"},
		}},
		groups: &mockGroups{groups: map[string]types.Group{
			"g1": {ID: "g1", Name: "Design"},
			"g2": {ID: "g2", Name: "Ops"},
			"g3": {ID: "g3", Name: "Read only"},
		}},
		members: &mockMembers{
			members: map[string][]types.Member{
				"g1": {
					{UserID: "lead", Role: types.RoleManager},
					{UserID: "ana", Role: types.RoleMember},
					{UserID: "bo", Role: types.RoleMember},
				},
				"g2": {{UserID: "lead", Role: types.RoleAdmin}, {UserID: "cy", Role: types.RoleMember}},
			},
			users: map[string]types.User{
				"ana@example.com": {ID: "ana", Email: "ana@example.com"},
				"bo":              {ID: "bo", Handle: "bo"},
				"outsider@x.com":  {ID: "outsider"},
			},
		},
		tasks: &mockTasks{},
	}
	f.exec = NewExecutor(f.auth, f.groups, f.members, f.tasks)
	n := 0
	f.exec.newID = func() string { n++; return fmt.Sprintf("task-%d", n) }
	f.exec.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func assignment(ta types.TaskAssignment) types.Command {
	return types.Command{Kind: types.CommandTaskAssignment, TaskAssignment: &ta}
}

func TestExecute_DeniedWithoutPermission(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "ana"}, "g1",
		assignment(types.TaskAssignment{Title: "x", AssignToAllMembers: true}))

	assert.True(t, out.Denied)
	assert.False(t, out.Response.IsCommand)
	assert.Equal(t, types.RequiresPermissionDenied, out.Response.RequiresPermission)
	assert.Equal(t, DeniedText, out.Response.ResponseText)
	assert.Empty(t, f.tasks.created)
}

func TestExecute_OverrideTextDoesNotGrant(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "viewer"}, "g1",
		assignment(types.TaskAssignment{Title: "x", Recipients: []string{"bo"}}))
	assert.True(t, out.Denied)
	assert.Zero(t, f.tasks.calls)
}

func TestExecute_ExplicitPermissionAllows(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "bo"}, "g1",
		assignment(types.TaskAssignment{Title: "Review copy", Recipients: []string{"ana@example.com"}}))
	require.NoError(t, out.Err)
	assert.True(t, out.Response.IsCommand)
	require.Len(t, f.tasks.created, 1)
	assert.Equal(t, "ana", f.tasks.created[0].AssignedTo)
	assert.Equal(t, "bo", f.tasks.created[0].CreatedBy)
}

func TestExecute_AllMembersDeduplicates(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{
			Title:              "Fill in retro notes",
			Description:        "before Friday",
			AssignToAllMembers: true,
			Recipients:         []string{"ana@example.com", "nobody@example.com", ""},
			DueDate:            "2025-03-07",
			Priority:           "HIGH",
		}))

	require.NoError(t, out.Err)
	require.Len(t, f.tasks.created, 3)
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, out.TaskIDs)
	assert.Equal(t, `Done. I assigned "Fill in retro notes" to 3 people, due 2025-03-07.`, out.Response.ResponseText)

	assignees := map[string]bool{}
	for _, task := range f.tasks.created {
		assignees[task.AssignedTo] = true
		assert.Equal(t, "g1", task.GroupID)
		assert.Equal(t, types.PriorityHigh, task.Priority)
		assert.Equal(t, types.TaskPending, task.Status)
		require.NotNil(t, task.DueDate)
		assert.Equal(t, "2025-03-07", task.DueDate.Format("2006-01-02"))
	}
	assert.Equal(t, map[string]bool{"lead": true, "ana": true, "bo": true}, assignees)
}

func TestExecute_RoleFilter(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{Title: "Standup", AssignToRole: "Member"}))
	require.NoError(t, out.Err)
	assert.Len(t, f.tasks.created, 2)
	assert.Equal(t, types.PriorityMedium, f.tasks.created[0].Priority)
	assert.Nil(t, f.tasks.created[0].DueDate)
}

func TestExecute_UnresolvedRecipientsOnly(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{Title: "Ghost", Recipients: []string{"ghost@example.com"}}))
	assert.True(t, out.Response.IsCommand)
	assert.Equal(t, fmt.Sprintf(NoRecipients, "Ghost"), out.Response.ResponseText)
	assert.Empty(t, f.tasks.created)
}

func TestExecute_PartialFailureNotRolledBack(t *testing.T) {
	f := newFixture()
	f.tasks.failAt = 2

	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{Title: "Inventory", AssignToAllMembers: true}))

	require.Error(t, out.Err)
	assert.Len(t, f.tasks.created, 1)
	assert.Equal(t, []string{"task-1"}, out.TaskIDs)
	assert.Equal(t, 2, f.tasks.calls)
	assert.Contains(t, out.Response.ResponseText, "1 of 3 tasks were created")
}

func TestExecute_CommandGroupScoping(t *testing.T) {
	t.Run("other group authorized separately", func(t *testing.T) {
		f := newFixture()
		out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
			assignment(types.TaskAssignment{Title: "Rotate keys", GroupID: "g2", AssignToAllMembers: true}))
		require.NoError(t, out.Err)
		require.Len(t, f.tasks.created, 2)
		assert.Equal(t, "g2", f.tasks.created[0].GroupID)
	})

	t.Run("no permission in other group", func(t *testing.T) {
		f := newFixture()
		out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
			assignment(types.TaskAssignment{Title: "x", GroupID: "g3", AssignToAllMembers: true}))
		assert.True(t, out.Denied)
	})

	t.Run("unknown group", func(t *testing.T) {
		f := newFixture()
		out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
			assignment(types.TaskAssignment{Title: "x", GroupID: "nope", AssignToAllMembers: true}))
		assert.True(t, out.Denied)
		assert.Equal(t, UnknownGroup, out.Response.ResponseText)
		assert.Empty(t, f.tasks.created)
	})
}

func TestExecute_AuthorizerError(t *testing.T) {
	f := newFixture()
	f.auth.err = errors.New("database is locked")
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{Title: "x", AssignToAllMembers: true}))
	require.Error(t, out.Err)
	assert.False(t, out.Denied)
	assert.Equal(t, AuthFailedText, out.Response.ResponseText)
}

func TestExecute_MemberListError(t *testing.T) {
	f := newFixture()
	f.members.listErr = errors.New("timeout")
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1",
		assignment(types.TaskAssignment{Title: "x", AssignToAllMembers: true}))
	require.Error(t, out.Err)
	assert.Empty(t, f.tasks.created)
}

func TestExecute_Unsupported(t *testing.T) {
	f := newFixture()
	out := f.exec.Execute(context.Background(), types.Caller{UserID: "lead"}, "g1", types.Command{})
	assert.Equal(t, UnsupportedCmd, out.Response.ResponseText)
	assert.Zero(t, f.tasks.calls)
}

func TestParseDueDate(t *testing.T) {
	d := parseDueDate("2025-12-31")
	require.NotNil(t, d)
	assert.Equal(t, 2025, d.Year())

	d = parseDueDate("2025-12-31T17:00:00+02:00")
	require.NotNil(t, d)
	assert.Equal(t, 15, d.Hour())

	assert.Nil(t, parseDueDate("next friday"))
	assert.Nil(t, parseDueDate(""))
}
