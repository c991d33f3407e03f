// Package prompt renders the instructions sent to the language model.
package prompt

import (
	"fmt"
	"strings"

	"credence/internal/articulation"
	"credence/internal/types"
)

// maxTurnBytes caps each chat turn rendered into the instruction.
const maxTurnBytes = 4000

// SystemInstruction renders the context payload as the model's system
// instruction. Sections with no data are omitted.
func SystemInstruction(p *types.ContextPayload) string {
	var sb strings.Builder

	group := p.GroupName
	if group == "" {
		group = p.GroupID
	}
	sb.WriteString(fmt.Sprintf("You are the workspace assistant for the group %q.", group))
	if p.CallerName != "" {
		sb.WriteString(fmt.Sprintf(" You are talking to %s.", p.CallerName))
	}
	sb.WriteString(" Answer using the context below. Say so plainly when the context does not contain the answer.\n\n")

	writePermissions(&sb, p.Permissions)
	writeTurns(&sb, p.RecentTurns)
	writeOpenItems(&sb, p.OpenItems)
	writeDocuments(&sb, p.Documents)
	writeSnippets(&sb, p.Snippets)
	writeAttachments(&sb, p.Attachments)
	writeNotes(&sb, p.Notes)
	writeProtocol(&sb, p.GroupID)

	return sb.String()
}

func writePermissions(sb *strings.Builder, a types.Authorization) {
	sb.WriteString("## Caller permissions\n")
	role := string(a.Role)
	if role == "" {
		role = "unknown"
	}
	sb.WriteString(fmt.Sprintf("- Role: %s\n", role))
	perms := a.SortedPermissions()
	if len(perms) == 0 {
		sb.WriteString("- Permissions: none\n")
	} else {
		sb.WriteString(fmt.Sprintf("- Permissions: %s\n", strings.Join(perms, ", ")))
	}
	sb.WriteString(fmt.Sprintf("- May assign tasks: %t\n", a.CanAssign()))

	if text := strings.TrimSpace(a.Override); text != "" {
		sb.WriteString("\n### Group permission override\n")
		sb.WriteString("This guidance takes precedence over the permission list above when they conflict:\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeTurns(sb *strings.Builder, turns []types.ChatTurn) {
	if len(turns) == 0 {
		return
	}
	sb.WriteString("## Recent conversation (oldest first)\n")
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if len(content) > maxTurnBytes {
			content = truncate(content, maxTurnBytes) + " [...]"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Role, content))
	}
	sb.WriteString("\n")
}

func writeOpenItems(sb *strings.Builder, items []types.OpenItem) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("## Open work items\n")
	for _, it := range items {
		line := "- " + it.Title
		if it.DueDate != nil {
			line += " (due " + it.DueDate.Format("2006-01-02") + ")"
		}
		if it.Status != "" {
			line += " [" + string(it.Status) + "]"
		}
		if it.GroupName != "" {
			line += " in " + it.GroupName
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
}

func writeDocuments(sb *strings.Builder, docs []types.DocumentMeta) {
	if len(docs) == 0 {
		return
	}
	sb.WriteString("## Recent documents in this group\n")
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("- %s (%s, uploaded %s)\n", d.Title, orUnknown(d.MediaType), d.UploadedAt.Format("2006-01-02")))
	}
	sb.WriteString("\n")
}

func writeSnippets(sb *strings.Builder, snippets []types.TextSnippet) {
	if len(snippets) == 0 {
		return
	}
	sb.WriteString("## Document content\n")
	for _, s := range snippets {
		sb.WriteString(fmt.Sprintf("### %s\n", s.Label))
		sb.WriteString(s.Text)
		sb.WriteString("\n\n")
	}
}

func writeAttachments(sb *strings.Builder, refs []types.AttachmentRef) {
	if len(refs) == 0 {
		return
	}
	sb.WriteString("## Attached files\n")
	sb.WriteString("These files are attached to the message in this order:\n")
	for i, r := range refs {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, r.Label, orUnknown(r.MediaType)))
	}
	sb.WriteString("\n")
}

func writeNotes(sb *strings.Builder, notes []string) {
	if len(notes) == 0 {
		return
	}
	sb.WriteString("## Notes\n")
	for _, n := range notes {
		sb.WriteString("- " + n + "\n")
	}
	sb.WriteString("\n")
}

func writeProtocol(sb *strings.Builder, groupID string) {
	sb.WriteString("## Reply protocol\n")
	sb.WriteString("Reply in plain text or markdown by default.\n\n")
	sb.WriteString(fmt.Sprintf("To assign work, reply with exactly one line starting with %s followed by a JSON object:\n", articulation.CommandPrefix))
	sb.WriteString(fmt.Sprintf(`%s {"type":"task_assignment","title":"...","description":"...","recipients":["email or handle"],"assign_to_all_members":false,"assign_to_role":"","due_date":"YYYY-MM-DD","priority":"low|medium|high|urgent","group_id":%q}`, articulation.CommandPrefix, groupID))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("If the caller asks for something their permissions do not allow, reply with %s followed by a short explanation.\n", articulation.DeniedPrefix))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func orUnknown(s string) string {
	if s == "" {
		return "unknown type"
	}
	return s
}
