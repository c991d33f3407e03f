// Package command executes structured commands emitted by the language model
// under the caller's effective permissions.
//
// Execution is synchronous and best-effort: tasks are created one at a time,
// a failure stops the loop, and tasks created before it are kept.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"credence/internal/logging"
	"credence/internal/metrics"
	"credence/internal/rbac"
	"credence/internal/types"

	"github.com/google/uuid"
)

// User-visible texts.
const (
	DeniedText     = "You don't have permission to assign tasks in this group."
	UnknownGroup   = "I couldn't find that group, so no tasks were assigned."
	NoRecipients   = "I couldn't find anyone to assign %q to, so no tasks were created."
	AuthFailedText = "I couldn't verify your permissions right now, so no tasks were assigned. Please try again."
	UnsupportedCmd = "I can't run that kind of action yet."
)

// GroupLookup finds groups by ID.
type GroupLookup interface {
	GetGroup(ctx context.Context, groupID string) (types.Group, error)
}

// Authorizer computes a caller's authorization in a group.
type Authorizer interface {
	Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error)
}

// Outcome is the result of executing one command.
type Outcome struct {
	Response types.Response
	TaskIDs  []string
	Denied   bool
	Err      error
}

// Executor runs task-assignment commands.
type Executor struct {
	auth    Authorizer
	groups  GroupLookup
	members types.MemberStore
	tasks   types.TaskStore

	now   func() time.Time
	newID func() string
}

// NewExecutor creates an Executor.
func NewExecutor(auth Authorizer, groups GroupLookup, members types.MemberStore, tasks types.TaskStore) *Executor {
	return &Executor{
		auth:    auth,
		groups:  groups,
		members: members,
		tasks:   tasks,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Execute runs cmd for caller. groupID is the request's group; a command
// naming another group is authorized against that group instead. The returned
// response text always reflects what actually happened.
func (e *Executor) Execute(ctx context.Context, caller types.Caller, groupID string, cmd types.Command) Outcome {
	if cmd.Kind != types.CommandTaskAssignment || cmd.TaskAssignment == nil {
		metrics.Commands.WithLabelValues(cmd.Kind.String(), "unsupported").Inc()
		return Outcome{Response: types.Response{ResponseText: UnsupportedCmd}}
	}
	ta := cmd.TaskAssignment

	target := strings.TrimSpace(ta.GroupID)
	if target == "" {
		target = groupID
	}
	audit := logging.Audit(logging.RequestIDFromContext(ctx), target, caller.UserID)
	kind := cmd.Kind.String()

	if target != groupID {
		if _, err := e.groups.GetGroup(ctx, target); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				audit.CommandDenied(kind, "unknown group")
				metrics.Commands.WithLabelValues(kind, "denied").Inc()
				return denied(UnknownGroup)
			}
			return e.failAuth(audit, kind, err)
		}
	}

	// 1. Authorization. Only the role and enumerated permissions count here.
	auth, err := e.auth.Authorize(ctx, caller.UserID, target)
	if errors.Is(err, rbac.ErrNotMember) {
		audit.CommandDenied(kind, "not a member")
		metrics.Commands.WithLabelValues(kind, "denied").Inc()
		return denied(DeniedText)
	}
	if err != nil {
		return e.failAuth(audit, kind, err)
	}
	if !auth.CanAssign() {
		audit.CommandDenied(kind, fmt.Sprintf("role %s lacks %s", auth.Role, types.PermCreateAssignment))
		metrics.Commands.WithLabelValues(kind, "denied").Inc()
		return denied(DeniedText)
	}

	// 2-3. Recipients, deduplicated.
	recipients, err := e.resolveRecipients(ctx, target, ta)
	if err != nil {
		logging.CommandError("resolve recipients for %q: %v", ta.Title, err)
		audit.CommandFailed(kind, 0, err)
		metrics.Commands.WithLabelValues(kind, "failed").Inc()
		return Outcome{
			Response: types.Response{ResponseText: fmt.Sprintf("I couldn't look up who should get %q, so no tasks were created.", ta.Title), IsCommand: true},
			Err:      err,
		}
	}
	if len(recipients) == 0 {
		logging.Command("no recipients resolved for %q in %s", ta.Title, target)
		metrics.Commands.WithLabelValues(kind, "no_recipients").Inc()
		return Outcome{Response: types.Response{ResponseText: fmt.Sprintf(NoRecipients, ta.Title), IsCommand: true}}
	}

	// 4. One task per recipient.
	due := parseDueDate(ta.DueDate)
	priority := types.ParsePriority(ta.Priority)
	var created []string
	for _, userID := range recipients {
		task := types.Task{
			ID:          e.newID(),
			GroupID:     target,
			Title:       ta.Title,
			Description: ta.Description,
			DueDate:     due,
			Priority:    priority,
			Status:      types.TaskPending,
			CreatedBy:   caller.UserID,
			AssignedTo:  userID,
			CreatedAt:   e.now().UTC(),
		}
		if err := e.tasks.CreateTask(ctx, task); err != nil {
			logging.CommandError("create task for %s failed after %d of %d: %v", userID, len(created), len(recipients), err)
			audit.CommandFailed(kind, len(created), err)
			metrics.Commands.WithLabelValues(kind, "failed").Inc()
			return Outcome{
				Response: types.Response{ResponseText: failureText(ta.Title, len(created), len(recipients)), IsCommand: true},
				TaskIDs:  created,
				Err:      err,
			}
		}
		created = append(created, task.ID)
		audit.TaskCreated(task.ID, userID)
		metrics.TasksCreated.Inc()
	}

	// 5. Report the actual outcome.
	metrics.Commands.WithLabelValues(kind, "ok").Inc()
	logging.Get(logging.CategoryCommand).StructuredLog("info", "tasks assigned", map[string]interface{}{
		"title":      ta.Title,
		"group_id":   target,
		"recipients": len(created),
		"due":        ta.DueDate,
		"priority":   string(priority),
	})
	return Outcome{
		Response: types.Response{ResponseText: successText(ta.Title, len(created), due), IsCommand: true},
		TaskIDs:  created,
	}
}

func (e *Executor) failAuth(audit *logging.AuditLogger, kind string, err error) Outcome {
	logging.CommandError("authorization lookup failed: %v", err)
	audit.CommandFailed(kind, 0, err)
	metrics.Commands.WithLabelValues(kind, "failed").Inc()
	return Outcome{Response: types.Response{ResponseText: AuthFailedText}, Err: err}
}

func denied(text string) Outcome {
	return Outcome{
		Response: types.Response{ResponseText: text, RequiresPermission: types.RequiresPermissionDenied},
		Denied:   true,
	}
}

// resolveRecipients gathers user IDs from whole-group membership, role
// membership, and explicit identifiers, in that order. Unresolved identifiers
// are skipped.
func (e *Executor) resolveRecipients(ctx context.Context, groupID string, ta *types.TaskAssignment) ([]string, error) {
	var ids []string

	if ta.AssignToAllMembers || ta.AssignToRole != "" {
		members, err := e.members.ListMembers(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		for _, m := range members {
			if ta.AssignToAllMembers || strings.EqualFold(string(m.Role), ta.AssignToRole) {
				ids = append(ids, m.UserID)
			}
		}
	}

	for _, ident := range ta.Recipients {
		ident = strings.TrimSpace(ident)
		if ident == "" {
			continue
		}
		u, err := e.members.FindUserByIdentifier(ctx, ident)
		if errors.Is(err, types.ErrNotFound) {
			logging.CommandWarn("recipient %q not found, skipping", ident)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find user %q: %w", ident, err)
		}
		ids = append(ids, u.ID)
	}

	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// parseDueDate accepts YYYY-MM-DD or RFC3339. Anything else means no due date.
func parseDueDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	logging.CommandWarn("ignoring unparseable due date %q", s)
	return nil
}

func successText(title string, n int, due *time.Time) string {
	who := "1 person"
	if n != 1 {
		who = fmt.Sprintf("%d people", n)
	}
	text := fmt.Sprintf("Done. I assigned %q to %s", title, who)
	if due != nil {
		text += ", due " + due.Format("2006-01-02")
	}
	return text + "."
}

func failureText(title string, created, total int) string {
	if created == 0 {
		return fmt.Sprintf("Something went wrong while assigning %q, so no tasks were created.", title)
	}
	return fmt.Sprintf("Something went wrong while assigning %q. %d of %d tasks were created before the error; the rest were not.", title, created, total)
}
