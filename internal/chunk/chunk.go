// Package chunk splits long document text into bounded segments.
package chunk

import "unicode/utf8"

// Defaults used when callers pass non-positive limits.
const (
	DefaultMaxBytes  = 200 * 1024
	DefaultMaxChunks = 5
)

// Split cuts text left to right into at most maxChunks pieces of at most
// maxBytes bytes each. Text past the last chunk is dropped. Cuts never land
// inside a UTF-8 sequence, so a chunk may be shorter than maxBytes; a rune
// wider than maxBytes ends the split and the rest is dropped.
func Split(text string, maxBytes, maxChunks int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if text == "" {
		return nil
	}

	var chunks []string
	rest := text
	for rest != "" && len(chunks) < maxChunks {
		if len(rest) <= maxBytes {
			chunks = append(chunks, rest)
			break
		}
		cut := boundary(rest, maxBytes)
		if cut == 0 {
			break
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	return chunks
}

// Truncated reports whether Split would drop text.
func Truncated(text string, maxBytes, maxChunks int) bool {
	total := 0
	for _, c := range Split(text, maxBytes, maxChunks) {
		total += len(c)
	}
	return total < len(text)
}

// boundary returns the largest cut <= limit that starts a rune, or 0 when
// the first rune is wider than limit.
func boundary(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return cut
}
