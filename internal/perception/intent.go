package perception

import (
	"regexp"
	"strings"
)

// IntentKind is the coarse classification of an incoming message.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentExplicitFile
	IntentImplicitFile
	IntentListFiles
	IntentAssignment
)

func (k IntentKind) String() string {
	switch k {
	case IntentExplicitFile:
		return "explicit_file"
	case IntentImplicitFile:
		return "implicit_file"
	case IntentListFiles:
		return "list_files"
	case IntentAssignment:
		return "assignment_hint"
	}
	return "none"
}

// Intent is the result of Detect. Kind is the winning classification; the
// boolean hints record every pattern family that matched.
type Intent struct {
	Kind     IntentKind
	FileName string // set for ExplicitFile and ImplicitFile

	ListFiles      bool
	AssignmentHint bool
}

// HasFile reports whether the message references a document.
func (i Intent) HasFile() bool {
	return i.Kind == IntentExplicitFile || i.Kind == IntentImplicitFile
}

// =============================================================================
// PATTERNS
// =============================================================================

// ExplicitMarker finds the reserved file marker ("file:" or "@file").
var ExplicitMarker = regexp.MustCompile(`(?i)(?:^|[\s(\[{,;])(?:@file:?|file:)[ \t]*`)

// ReadVerbPatterns capture a quoted name after a reading verb.
var ReadVerbPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:summari[sz]e|read|open|show|analy[sz]e|review)\b(?:\s+(?:me|us|the|this|that|our|my|file|document|doc|called|named))*\s*"([^"]+)"`),
	regexp.MustCompile(`(?i)\b(?:summari[sz]e|read|open|show|analy[sz]e|review)\b(?:\s+(?:me|us|the|this|that|our|my|file|document|doc|called|named))*\s*“([^”]+)”`),
	regexp.MustCompile(`(?i)\b(?:summari[sz]e|read|open|show|analy[sz]e|review)\b(?:\s+(?:me|us|the|this|that|our|my|file|document|doc|called|named))*\s*'([^']+)'`),
	regexp.MustCompile("(?i)\\b(?:summari[sz]e|read|open|show|analy[sz]e|review)\\b(?:\\s+(?:me|us|the|this|that|our|my|file|document|doc|called|named))*\\s*`([^`]+)`"),
}

// DocumentToken matches a bare token ending in a known document extension.
var DocumentToken = regexp.MustCompile(`(?i)(?:^|[\s("'\x60])([\w][\w\-./]*\.(?:pdf|docx|doc|xlsx|xls|csv|txt|md|json))\b`)

// ListPatterns match requests to enumerate the group's documents.
var ListPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blist\s+(?:all\s+)?(?:of\s+)?(?:the\s+|my\s+|our\s+)?(?:files|documents|docs|uploads)\b`),
	regexp.MustCompile(`(?i)\b(?:which|what)\s+(?:files|documents|docs)\b`),
	regexp.MustCompile(`(?i)\bshow\s+(?:me\s+|us\s+)?(?:all\s+)?(?:of\s+)?(?:the\s+|my\s+|our\s+)?(?:files|documents|docs|uploads)\b`),
	regexp.MustCompile(`(?i)\bwhat(?:'s|\s+is|\s+has\s+been|\s+was)\s+uploaded\b`),
}

// AssignmentPatterns hint that the user wants work assigned.
var AssignmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:assign|reassign|delegate|schedule)\b`),
	regexp.MustCompile(`(?i)\b(?:create|add|make)\s+(?:a\s+|an\s+)?(?:new\s+)?(?:task|to-?do|assignment)s?\b`),
}

// nameTerminators end a bare file name after the marker.
const nameTerminators = ",;:!?)]}"

var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'`':  '`',
	'“':  '”',
	'‘':  '’',
}

// =============================================================================
// DETECTION
// =============================================================================

// Detect classifies message. It is pure and deterministic.
func Detect(message string) Intent {
	var in Intent

	explicit := explicitName(message)
	implicit := ""
	if explicit == "" {
		implicit = implicitName(message)
	}
	in.ListFiles = matchesAny(ListPatterns, message)
	in.AssignmentHint = matchesAny(AssignmentPatterns, message)

	switch {
	case explicit != "":
		in.Kind, in.FileName = IntentExplicitFile, explicit
	case implicit != "":
		in.Kind, in.FileName = IntentImplicitFile, implicit
	case in.ListFiles:
		in.Kind = IntentListFiles
	case in.AssignmentHint:
		in.Kind = IntentAssignment
	}
	return in
}

// explicitName returns the name following the first marker that has one.
func explicitName(message string) string {
	for _, loc := range ExplicitMarker.FindAllStringIndex(message, -1) {
		if name := readName(message[loc[1]:]); name != "" {
			return name
		}
	}
	return ""
}

// readName reads a quoted name, or a bare name up to whitespace or punctuation.
func readName(s string) string {
	if s == "" {
		return ""
	}
	first := []rune(s)[0]
	if closing, ok := quotePairs[first]; ok {
		body := s[len(string(first)):]
		if end := strings.IndexRune(body, closing); end >= 0 {
			return strings.TrimSpace(body[:end])
		}
		// unterminated quote: treat the rest as bare
		s = body
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || strings.ContainsRune(nameTerminators, r) || isQuote(r)
	})
	if end >= 0 {
		s = s[:end]
	}
	return strings.TrimRight(s, ".")
}

func isQuote(r rune) bool {
	if _, ok := quotePairs[r]; ok {
		return true
	}
	return r == '”' || r == '’'
}

func implicitName(message string) string {
	for _, re := range ReadVerbPatterns {
		if m := re.FindStringSubmatch(message); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	if m := DocumentToken.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
