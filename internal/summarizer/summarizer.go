// Package summarizer compresses extracted document text through the language
// model when a document cannot be attached directly.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"credence/internal/chunk"
	"credence/internal/logging"
	"credence/internal/types"
)

// Placeholder stands in for a document with no extractable text.
const Placeholder = "No readable text could be extracted from this file."

// ErrEmptySummary is returned when the model answers with nothing.
var ErrEmptySummary = errors.New("model returned an empty summary")

// Config bounds summarizer input and call time. MaxBytes caps the text sent
// in one call; callers summarize longer text chunk by chunk.
type Config struct {
	Timeout  time.Duration
	MaxBytes int
}

// Summarizer wraps the model's summarize call.
type Summarizer struct {
	model types.LanguageModel
	cfg   Config
}

// New creates a Summarizer.
func New(model types.LanguageModel, cfg Config) *Summarizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Summarizer{model: model, cfg: cfg}
}

// Summarize returns a condensed summary of text. Blank text yields the
// placeholder without a model call. Input beyond MaxBytes is dropped before
// the call.
func (s *Summarizer) Summarize(ctx context.Context, text, title string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return Placeholder, nil
	}

	var input string
	if chunks := chunk.Split(text, s.cfg.MaxBytes, 1); len(chunks) > 0 {
		input = chunks[0]
	}
	if len(input) < len(text) {
		logging.ContextDebug("summary input for %q truncated from %d to %d bytes", title, len(text), len(input))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	summary, err := s.model.Summarize(callCtx, input, title)
	if err != nil {
		return "", fmt.Errorf("summarize %q: %w", title, err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summarize %q: %w", title, ErrEmptySummary)
	}

	logging.Context("summarized %q: %d -> %d bytes in %v", title, len(input), len(summary), time.Since(start))
	return summary, nil
}
