// Package assistant runs one chat message through the full pipeline: intent
// detection, document resolution, context assembly, the model call, reply
// parsing and command execution.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"credence/internal/articulation"
	"credence/internal/assembly"
	"credence/internal/command"
	"credence/internal/logging"
	"credence/internal/metrics"
	"credence/internal/perception"
	"credence/internal/types"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// User-visible texts.
const (
	ApologyText  = "Sorry, I couldn't come up with an answer just now. Please try again in a moment."
	NoFilesText  = "There are no files in this group yet."
	LookupFailed = "Looking up the document %q failed, so its content is not available. Tell the user you could not open it."
	NotFoundNote = "No document named %q was found in this group. Tell the user it was not found and offer to list the available files."
)

// ErrEmptyMessage is returned for a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// DocumentResolver finds and lists group documents.
type DocumentResolver interface {
	Resolve(ctx context.Context, groupID, name string) ([]types.DocumentRef, error)
	List(ctx context.Context, groupID string) ([]types.DocumentRef, error)
}

// ContextBuilder assembles the model context.
type ContextBuilder interface {
	Build(ctx context.Context, req assembly.Request) (*types.ContextPayload, error)
}

// CommandExecutor runs parsed commands.
type CommandExecutor interface {
	Execute(ctx context.Context, caller types.Caller, groupID string, cmd types.Command) command.Outcome
}

// Authorizer computes a caller's authorization in a group.
type Authorizer interface {
	Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Auth      Authorizer
	Resolver  DocumentResolver
	Assembler ContextBuilder
	Model     types.LanguageModel
	Executor  CommandExecutor
	ChatLog   types.ChatLog

	// ReplyTimeout bounds the model call. Zero means 60s.
	ReplyTimeout time.Duration
}

// Request is one inbound chat message.
type Request struct {
	Caller  types.Caller
	GroupID string
	Message string
}

// Service is the assistant pipeline.
type Service struct {
	deps  Deps
	now   func() time.Time
	newID func() string
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.ReplyTimeout <= 0 {
		deps.ReplyTimeout = 60 * time.Second
	}
	return &Service{
		deps:  deps,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// exchange carries what one request produced, for the chat log.
type exchange struct {
	requestID string
	intent    perception.Intent
	documents []string
	command   string
	taskIDs   []string
	outcome   string
}

// Handle answers one message. Errors are returned only when the request
// cannot be served at all (blank message, caller not a member, unknown
// group); every other failure becomes a conversational reply.
func (s *Service) Handle(ctx context.Context, req Request) (*types.Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	received := s.now()

	ex := &exchange{requestID: s.newID()}
	ctx = logging.ContextWithRequestID(ctx, ex.requestID)
	log := logging.WithRequestID(logging.CategorySession, ex.requestID).
		WithField("group_id", req.GroupID).
		WithField("user_id", req.Caller.UserID)
	audit := logging.Audit(ex.requestID, req.GroupID, req.Caller.UserID)

	ex.intent = perception.Detect(message)
	logging.PerceptionDebug("intent=%s file=%q assignment_hint=%v", ex.intent.Kind, ex.intent.FileName, ex.intent.AssignmentHint)
	metrics.Intents.WithLabelValues(ex.intent.Kind.String()).Inc()
	audit.IntentParsed(ex.intent.Kind.String(), ex.intent.FileName, ex.intent.AssignmentHint)

	if ex.intent.Kind == perception.IntentListFiles {
		resp, err := s.listFiles(ctx, req)
		if err != nil {
			metrics.Requests.WithLabelValues("error").Inc()
			return nil, err
		}
		ex.outcome = "listing"
		s.record(ctx, req, message, received, resp, ex)
		metrics.Requests.WithLabelValues("listing").Inc()
		return resp, nil
	}

	buildReq := assembly.Request{Caller: req.Caller, GroupID: req.GroupID}
	if ex.intent.HasFile() {
		docs, err := s.deps.Resolver.Resolve(ctx, req.GroupID, ex.intent.FileName)
		audit.DocumentResolved(ex.intent.FileName, len(docs))
		switch {
		case err != nil:
			log.Warn("resolve %q failed: %v", ex.intent.FileName, err)
			buildReq.Notes = append(buildReq.Notes, fmt.Sprintf(LookupFailed, ex.intent.FileName))
		case len(docs) == 0:
			buildReq.Notes = append(buildReq.Notes, fmt.Sprintf(NotFoundNote, ex.intent.FileName))
		default:
			// most relevant candidate only
			buildReq.Documents = docs[:1]
			ex.documents = append(ex.documents, docs[0].Title)
		}
	}

	payload, err := s.deps.Assembler.Build(ctx, buildReq)
	if err != nil {
		metrics.Requests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build context: %w", err)
	}

	resp := s.reply(ctx, req, message, payload, ex, audit)
	s.record(ctx, req, message, received, resp, ex)
	metrics.Requests.WithLabelValues(ex.outcome).Inc()
	log.Info("handled %s message in %v: outcome=%s", ex.intent.Kind, time.Since(received), ex.outcome)
	return resp, nil
}

// reply calls the model and turns its answer into the final response.
func (s *Service) reply(ctx context.Context, req Request, message string, payload *types.ContextPayload,
	ex *exchange, audit *logging.AuditLogger) *types.Response {
	callCtx, cancel := context.WithTimeout(ctx, s.deps.ReplyTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.deps.Model.GenerateReply(callCtx, message, payload)
	audit.LLMCall(perception.OpReply, time.Since(start), err)
	if err != nil {
		logging.Get(logging.CategorySession).Error("model reply failed for group %s: %v", req.GroupID, err)
		ex.outcome = "apology"
		return &types.Response{ResponseText: ApologyText}
	}

	parsed := articulation.Parse(raw)
	switch {
	case parsed.PermissionDenied:
		ex.outcome = "denied"
		return &types.Response{
			ResponseText:       parsed.ResponseText,
			RequiresPermission: types.RequiresPermissionDenied,
		}

	case parsed.IsCommand:
		out := s.deps.Executor.Execute(ctx, req.Caller, req.GroupID, parsed.Command)
		ex.command = parsed.Command.Kind.String()
		ex.taskIDs = out.TaskIDs
		switch {
		case out.Denied:
			ex.outcome = "denied"
		case out.Err != nil:
			ex.outcome = "command_failed"
		default:
			ex.outcome = "command"
		}
		resp := out.Response
		return &resp
	}

	ex.outcome = "ok"
	return &types.Response{ResponseText: parsed.ResponseText}
}

// listFiles answers a listing request directly, without the model.
func (s *Service) listFiles(ctx context.Context, req Request) (*types.Response, error) {
	if _, err := s.deps.Auth.Authorize(ctx, req.Caller.UserID, req.GroupID); err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	docs, err := s.deps.Resolver.List(ctx, req.GroupID)
	if err != nil {
		logging.SessionWarn("list documents for %s: %v", req.GroupID, err)
		return &types.Response{ResponseText: ApologyText}, nil
	}
	return &types.Response{ResponseText: FormatListing(docs, s.now())}, nil
}

// FormatListing renders docs as a numbered list, in the given order.
func FormatListing(docs []types.DocumentRef, now time.Time) string {
	if len(docs) == 0 {
		return NoFilesText
	}
	var sb strings.Builder
	noun := "files"
	if len(docs) == 1 {
		noun = "file"
	}
	fmt.Fprintf(&sb, "This group has %d %s, most recent first:\n", len(docs), noun)
	for i, d := range docs {
		var details []string
		if d.IsInlineContent {
			details = append(details, "note")
		} else if d.MediaType != "" {
			details = append(details, d.MediaType)
		}
		if d.SizeBytes > 0 {
			details = append(details, humanize.Bytes(uint64(d.SizeBytes)))
		}
		if !d.UploadedAt.IsZero() {
			details = append(details, "uploaded "+humanize.RelTime(d.UploadedAt, now, "ago", "from now"))
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, d.Title)
		if len(details) > 0 {
			fmt.Fprintf(&sb, " (%s)", strings.Join(details, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// record appends the user and assistant turns. Failures are logged only.
func (s *Service) record(ctx context.Context, req Request, message string, received time.Time, resp *types.Response, ex *exchange) {
	if s.deps.ChatLog == nil {
		return
	}
	meta := map[string]any{
		"request_id": ex.requestID,
		"intent":     ex.intent.Kind.String(),
		"outcome":    ex.outcome,
	}
	if len(ex.documents) > 0 {
		meta["documents"] = ex.documents
	}
	if ex.command != "" {
		meta["command"] = ex.command
		meta["task_ids"] = ex.taskIDs
	}
	if resp.RequiresPermission != "" {
		meta["requires_permission"] = resp.RequiresPermission
	}

	turns := []types.ChatTurn{
		{
			GroupID:   req.GroupID,
			UserID:    req.Caller.UserID,
			Role:      types.TurnUser,
			Content:   message,
			CreatedAt: received,
		},
		{
			GroupID:   req.GroupID,
			UserID:    req.Caller.UserID,
			Role:      types.TurnAssistant,
			Content:   resp.ResponseText,
			CreatedAt: s.now(),
			Metadata:  meta,
		},
	}
	for _, t := range turns {
		if err := s.deps.ChatLog.AppendTurn(ctx, t); err != nil {
			logging.SessionWarn("chat log append failed (%s turn, request %s): %v", t.Role, ex.requestID, err)
			return
		}
	}
}
