package types

import "context"

// DocumentStore is the document side of the relational store.
type DocumentStore interface {
	// FindInlineDocuments returns inline-content documents whose title equals
	// or contains candidate (case-insensitive), most recent first.
	FindInlineDocuments(ctx context.Context, groupID, candidate string, limit int) ([]DocumentRef, error)

	// FindDocuments returns blob-backed documents matching candidate, exact
	// title matches first, then by recency. Returns ErrLegacySchema when the
	// storage_path column is missing.
	FindDocuments(ctx context.Context, groupID, candidate string, limit int) ([]DocumentRef, error)

	// FindDocumentsLegacy is the alternate query shape for legacy schemas.
	FindDocumentsLegacy(ctx context.Context, groupID, candidate string, limit int) ([]LegacyDocument, error)

	// ListDocuments returns the group's documents, most recent first.
	ListDocuments(ctx context.Context, groupID string, limit int) ([]DocumentRef, error)
}

// ContextStore supplies the conversational context of a group.
type ContextStore interface {
	GetGroup(ctx context.Context, groupID string) (Group, error)

	// RecentTurns returns up to limit turns, newest first.
	RecentTurns(ctx context.Context, groupID string, limit int) ([]ChatTurn, error)

	// OpenTasks returns open tasks in the group. An empty assigneeID means
	// every assignee.
	OpenTasks(ctx context.Context, groupID, assigneeID string, limit int) ([]OpenItem, error)
}

// PermissionStore supplies role and override data for authorization.
type PermissionStore interface {
	GetMembership(ctx context.Context, groupID, userID string) (Member, error)
	RolePermissions(ctx context.Context, role Role) ([]Permission, error)
	GroupOverride(ctx context.Context, groupID string, role Role) (PermissionOverride, error)
}

// MemberStore resolves command recipients.
type MemberStore interface {
	ListMembers(ctx context.Context, groupID string) ([]Member, error)

	// FindUserByIdentifier matches an email or handle exactly.
	FindUserByIdentifier(ctx context.Context, identifier string) (User, error)
}

// TaskStore persists task records.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
}

// ChatLog persists chat turns.
type ChatLog interface {
	AppendTurn(ctx context.Context, turn ChatTurn) error
}

// BlobStore downloads uploaded files by locator.
type BlobStore interface {
	Download(ctx context.Context, locator string) (Blob, error)
}

// LanguageModel is the inference collaborator.
type LanguageModel interface {
	GenerateReply(ctx context.Context, message string, payload *ContextPayload) (string, error)
	Summarize(ctx context.Context, text, title string) (string, error)
	UploadAttachment(ctx context.Context, data []byte, mediaType, displayName string) (string, error)
}

// IdentityProvider maps verified session claims to a stable caller.
type IdentityProvider interface {
	Identify(ctx context.Context, claims map[string]string) (Caller, error)
}
