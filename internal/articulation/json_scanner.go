package articulation

// findJSONCandidates returns the top-level JSON object candidates in s, in
// order. Braces inside JSON strings are skipped; quotes outside any object are
// treated as prose.
//
// Scanning bytes is safe for the ASCII delimiters because UTF-8 never reuses
// ASCII bytes inside multi-byte sequences.
func findJSONCandidates(s string) []string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if inString {
			switch {
			case escape:
				escape = false
			case b == '\\':
				escape = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}

	return candidates
}
