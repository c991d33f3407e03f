// Package articulation interprets the language model's reply: plain text, a
// structured command, or a permission refusal.
package articulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"credence/internal/logging"
	"credence/internal/types"
)

// Reserved reply prefixes.
const (
	CommandPrefix = "COMMAND:"
	DeniedPrefix  = "PERMISSION_DENIED:"
)

// Reply is a parsed model reply.
type Reply struct {
	ResponseText     string
	IsCommand        bool
	Command          types.Command
	PermissionDenied bool
}

// Errors describing why a command payload was demoted to plain text.
var (
	ErrNoPayload       = errors.New("no JSON object after command prefix")
	ErrUnknownCommand  = errors.New("unrecognized command type")
	ErrMissingTitle    = errors.New("task assignment has no title")
	ErrMalformedObject = errors.New("malformed command payload")
)

// Parse interprets raw. It never fails: malformed or unknown commands come
// back as a plain reply carrying the trimmed original text.
func Parse(raw string) Reply {
	text := strings.TrimSpace(raw)

	switch {
	case hasPrefixFold(text, CommandPrefix):
		cmd, rest, err := parseCommand(text[len(CommandPrefix):])
		if err != nil {
			logging.ArticulationWarn("command demoted to plain reply: %v", err)
			return Reply{ResponseText: text}
		}
		logging.ArticulationDebug("parsed %s command", cmd.Kind)
		return Reply{ResponseText: rest, IsCommand: true, Command: cmd}

	case hasPrefixFold(text, DeniedPrefix):
		explanation := strings.TrimSpace(text[len(DeniedPrefix):])
		logging.ArticulationDebug("model refused on permission grounds")
		return Reply{ResponseText: explanation, PermissionDenied: true}
	}

	return Reply{ResponseText: text}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// commandWire is the accepted JSON shape. Models drift between snake_case and
// camelCase, so both spellings are read.
type commandWire struct {
	Type    string          `json:"type"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
	Data    json.RawMessage `json:"data"`

	assignmentWire
}

type assignmentWire struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Recipients  []string `json:"recipients"`
	DueDate     string   `json:"due_date"`
	Priority    string   `json:"priority"`
	GroupID     string   `json:"group_id"`

	AssignToAllMembers      *bool  `json:"assign_to_all_members"`
	AssignToAllMembersCamel *bool  `json:"assignToAllMembers"`
	AssignToRole            string `json:"assign_to_role"`
	AssignToRoleCamel       string `json:"assignToRole"`
	DueDateCamel            string `json:"dueDate"`
	GroupIDCamel            string `json:"groupId"`
}

// parseCommand decodes the first JSON object after the prefix and returns the
// command plus any prose left around it.
func parseCommand(body string) (types.Command, string, error) {
	body = stripFences(body)

	candidates := findJSONCandidates(body)
	if len(candidates) == 0 {
		return types.Command{}, "", ErrNoPayload
	}
	obj := candidates[0]

	var wire commandWire
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		return types.Command{}, "", fmt.Errorf("%w: %v", ErrMalformedObject, err)
	}

	kind := strings.ToLower(strings.TrimSpace(firstNonEmpty(wire.Type, wire.Command)))
	if kind != types.CommandTaskAssignment.String() {
		return types.Command{}, "", fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}

	a := wire.assignmentWire
	for _, nested := range []json.RawMessage{wire.Payload, wire.Data} {
		if len(nested) == 0 || string(nested) == "null" {
			continue
		}
		if err := json.Unmarshal(nested, &a); err != nil {
			return types.Command{}, "", fmt.Errorf("%w: %v", ErrMalformedObject, err)
		}
		break
	}

	ta := a.normalize()
	if ta.Title == "" {
		return types.Command{}, "", ErrMissingTitle
	}

	rest := strings.TrimSpace(strings.Replace(body, obj, "", 1))
	return types.Command{Kind: types.CommandTaskAssignment, TaskAssignment: ta}, rest, nil
}

func (a assignmentWire) normalize() *types.TaskAssignment {
	all := false
	switch {
	case a.AssignToAllMembers != nil:
		all = *a.AssignToAllMembers
	case a.AssignToAllMembersCamel != nil:
		all = *a.AssignToAllMembersCamel
	}

	recipients := make([]string, 0, len(a.Recipients))
	for _, r := range a.Recipients {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}

	return &types.TaskAssignment{
		Title:              strings.TrimSpace(a.Title),
		Description:        strings.TrimSpace(a.Description),
		Recipients:         recipients,
		AssignToAllMembers: all,
		AssignToRole:       strings.TrimSpace(firstNonEmpty(a.AssignToRole, a.AssignToRoleCamel)),
		DueDate:            strings.TrimSpace(firstNonEmpty(a.DueDate, a.DueDateCamel)),
		Priority:           strings.TrimSpace(a.Priority),
		GroupID:            strings.TrimSpace(firstNonEmpty(a.GroupID, a.GroupIDCamel)),
	}
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
