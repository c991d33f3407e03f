package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType names a pipeline decision worth keeping for later review.
type AuditEventType string

const (
	AuditIntentParsed     AuditEventType = "intent_parsed"
	AuditDocumentResolved AuditEventType = "document_resolved"
	AuditFragmentAttached AuditEventType = "fragment_attached"
	AuditLLMCall          AuditEventType = "llm_call"
	AuditCommandParsed    AuditEventType = "command_parsed"
	AuditCommandDenied    AuditEventType = "command_denied"
	AuditTaskCreated      AuditEventType = "task_created"
	AuditCommandFailed    AuditEventType = "command_failed"
)

// AuditEvent is one structured audit entry.
type AuditEvent struct {
	EventType  AuditEventType
	RequestID  string
	GroupID    string
	UserID     string
	Target     string
	Success    bool
	DurationMs int64
	Error      string
	Fields     map[string]interface{}
}

// AuditLogger writes audit events under the "audit" logger name.
type AuditLogger struct {
	requestID string
	groupID   string
	userID    string
}

// Audit returns an audit logger scoped to one request.
func Audit(requestID, groupID, userID string) *AuditLogger {
	return &AuditLogger{requestID: requestID, groupID: groupID, userID: userID}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if event.RequestID == "" {
		event.RequestID = a.requestID
	}
	if event.GroupID == "" {
		event.GroupID = a.groupID
	}
	if event.UserID == "" {
		event.UserID = a.userID
	}

	fields := []zap.Field{
		zap.String("event", string(event.EventType)),
		zap.String("req", event.RequestID),
		zap.String("group", event.GroupID),
		zap.String("user", event.UserID),
		zap.Bool("success", event.Success),
	}
	if event.Target != "" {
		fields = append(fields, zap.String("target", event.Target))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Int64("dur_ms", event.DurationMs))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Fields) > 0 {
		fields = append(fields, zap.Any("fields", event.Fields))
	}

	L().Named("audit").Info(string(event.EventType), fields...)
}

// IntentParsed records the routed intent of a message.
func (a *AuditLogger) IntentParsed(kind, target string, assignmentHint bool) {
	a.Log(AuditEvent{
		EventType: AuditIntentParsed,
		Target:    target,
		Success:   true,
		Fields:    map[string]interface{}{"kind": kind, "assignment_hint": assignmentHint},
	})
}

// DocumentResolved records the outcome of a document lookup.
func (a *AuditLogger) DocumentResolved(candidate string, matches int) {
	a.Log(AuditEvent{
		EventType: AuditDocumentResolved,
		Target:    candidate,
		Success:   matches > 0,
		Fields:    map[string]interface{}{"matches": matches},
	})
}

// FragmentAttached records which strategy represented a document.
func (a *AuditLogger) FragmentAttached(title, strategy string) {
	a.Log(AuditEvent{
		EventType: AuditFragmentAttached,
		Target:    title,
		Success:   true,
		Fields:    map[string]interface{}{"strategy": strategy},
	})
}

// LLMCall records a model call.
func (a *AuditLogger) LLMCall(op string, duration time.Duration, err error) {
	e := AuditEvent{
		EventType:  AuditLLMCall,
		Target:     op,
		Success:    err == nil,
		DurationMs: duration.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}

// CommandDenied records a refused command.
func (a *AuditLogger) CommandDenied(kind, reason string) {
	a.Log(AuditEvent{
		EventType: AuditCommandDenied,
		Target:    kind,
		Success:   false,
		Error:     reason,
	})
}

// TaskCreated records one task write.
func (a *AuditLogger) TaskCreated(taskID, assignee string) {
	a.Log(AuditEvent{
		EventType: AuditTaskCreated,
		Target:    taskID,
		Success:   true,
		Fields:    map[string]interface{}{"assignee": assignee},
	})
}

// CommandFailed records an aborted command with how far it got.
func (a *AuditLogger) CommandFailed(kind string, created int, err error) {
	a.Log(AuditEvent{
		EventType: AuditCommandFailed,
		Target:    kind,
		Success:   false,
		Error:     err.Error(),
		Fields:    map[string]interface{}{"created_before_failure": created},
	})
}
