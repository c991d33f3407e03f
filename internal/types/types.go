// Package types holds the shared data model of the assistant pipeline and the
// narrow collaborator interfaces it consumes (storage, blobs, language model).
package types

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Sentinel errors returned by storage collaborators.
var (
	// ErrNotFound reports a missing user, group, membership, or override.
	ErrNotFound = errors.New("not found")

	// ErrLegacySchema reports that the documents table predates the
	// storage_path column; callers fall back to the access-URL query shape.
	ErrLegacySchema = errors.New("legacy document schema")
)

// =============================================================================
// IDENTITY AND MEMBERSHIP
// =============================================================================

// Role is a member's role inside a group.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// Elevated reports whether the role may see and assign work for the whole group.
func (r Role) Elevated() bool {
	switch Role(strings.ToLower(string(r))) {
	case RoleOwner, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// Permission is an enumerated, machine-checkable grant.
type Permission string

const (
	PermCreateAssignment Permission = "create_assignment"
	PermViewAllTasks     Permission = "view_all_tasks"
	PermUploadDocuments  Permission = "upload_documents"
	PermManageMembers    Permission = "manage_members"
	PermReadDocuments    Permission = "read_documents"
)

// Caller is the verified identity of whoever sent the message.
type Caller struct {
	UserID string
	Name   string
	Email  string
}

// User is an account known to the relational store.
type User struct {
	ID     string
	Email  string
	Handle string
	Name   string
}

// Group is a tenant-scoped workspace.
type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Member is a user's membership in a group.
type Member struct {
	GroupID string
	UserID  string
	Role    Role
	Email   string
	Handle  string
	Name    string
}

// PermissionOverride is a group-level override for one role. Enumerated
// permissions replace the role defaults when non-empty; Text is free-form
// guidance that outranks them in conversation but never grants anything.
type PermissionOverride struct {
	GroupID     string
	Role        Role
	Permissions []Permission
	Text        string
}

// Authorization is the two-tier permission value for one caller in one group.
type Authorization struct {
	Role       Role
	Enumerated []Permission
	Override   string
}

// Has reports whether p is among the enumerated permissions.
func (a Authorization) Has(p Permission) bool {
	for _, e := range a.Enumerated {
		if e == p {
			return true
		}
	}
	return false
}

// CanAssign is the hard check used before any task is written. The free-text
// override is deliberately ignored here.
func (a Authorization) CanAssign() bool {
	return a.Role.Elevated() || a.Has(PermCreateAssignment)
}

// SortedPermissions returns the enumerated permissions in stable order.
func (a Authorization) SortedPermissions() []string {
	out := make([]string, 0, len(a.Enumerated))
	for _, p := range a.Enumerated {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// DocumentRef points at a group document, either a blob or inline text.
type DocumentRef struct {
	ID              string
	GroupID         string
	Title           string
	StorageLocator  string
	MediaType       string
	SizeBytes       int64
	UploadedAt      time.Time
	IsInlineContent bool
	InlineText      string
}

// LegacyDocument is a document row from a schema without storage_path; the
// locator has to be derived from AccessURL.
type LegacyDocument struct {
	DocumentRef
	AccessURL string
}

// Blob is a downloaded document body.
type Blob struct {
	Data      []byte
	MediaType string
}

// =============================================================================
// CHAT AND TASKS
// =============================================================================

// TurnRole distinguishes user and assistant turns.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// ChatTurn is one append-only entry of a group's chat log.
type ChatTurn struct {
	ID        string
	GroupID   string
	UserID    string
	Role      TurnRole
	Content   string
	CreatedAt time.Time
	Metadata  map[string]any
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

// Priority is a normalized task priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority normalizes free text to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	case PriorityUrgent, "critical":
		return PriorityUrgent
	}
	return PriorityMedium
}

// Task is a work item assigned to one user.
type Task struct {
	ID          string
	GroupID     string
	Title       string
	Description string
	DueDate     *time.Time
	Priority    Priority
	Status      TaskStatus
	CreatedBy   string
	AssignedTo  string
	CreatedAt   time.Time
}

// =============================================================================
// CONTEXT PAYLOAD (request-scoped, never persisted)
// =============================================================================

// OpenItem is an open work item shown to the model.
type OpenItem struct {
	Title     string
	DueDate   *time.Time
	GroupName string
	Status    TaskStatus
}

// DocumentMeta is document metadata shown to the model.
type DocumentMeta struct {
	Title      string
	MediaType  string
	UploadedAt time.Time
}

// TextSnippet is labeled document text injected into the prompt.
type TextSnippet struct {
	Label string
	Text  string
}

// AttachmentRef is a file handed to the model directly.
type AttachmentRef struct {
	Label        string
	RemoteHandle string
	MediaType    string
}

// ContextPayload is everything the model sees besides the message itself.
type ContextPayload struct {
	GroupID     string
	GroupName   string
	CallerName  string
	Permissions Authorization
	RecentTurns []ChatTurn // chronological, oldest first
	OpenItems   []OpenItem
	Documents   []DocumentMeta
	Snippets    []TextSnippet
	Attachments []AttachmentRef
	Notes       []string
}

// InjectedBytes is the total size of snippet text in the payload.
func (p *ContextPayload) InjectedBytes() int {
	n := 0
	for _, s := range p.Snippets {
		n += len(s.Text)
	}
	return n
}

// =============================================================================
// COMMANDS AND RESPONSES
// =============================================================================

// CommandKind tags the structured command variants the parser understands.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandTaskAssignment
)

func (k CommandKind) String() string {
	switch k {
	case CommandTaskAssignment:
		return "task_assignment"
	}
	return "none"
}

// TaskAssignment is the payload of a task_assignment command.
type TaskAssignment struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Recipients         []string `json:"recipients"`
	AssignToAllMembers bool     `json:"assign_to_all_members"`
	AssignToRole       string   `json:"assign_to_role,omitempty"`
	DueDate            string   `json:"due_date,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	GroupID            string   `json:"group_id,omitempty"`
}

// Command is a parsed, validated command. Exactly one variant field is set
// for a given Kind.
type Command struct {
	Kind           CommandKind
	TaskAssignment *TaskAssignment
}

// RequiresPermissionDenied is the only defined value of Response.RequiresPermission.
const RequiresPermissionDenied = "permission_denied"

// Response is what the pipeline returns to its caller.
type Response struct {
	ResponseText       string `json:"responseText"`
	IsCommand          bool   `json:"isCommand"`
	RequiresPermission string `json:"requiresPermission,omitempty"`
}
