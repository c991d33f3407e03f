package assembly

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"credence/internal/chunk"
	"credence/internal/extract"
	"credence/internal/logging"
	"credence/internal/metrics"
	"credence/internal/summarizer"
	"credence/internal/types"
)

// Strategy names the representation chosen for a resolved document.
type Strategy string

const (
	StrategyInline      Strategy = "inline"
	StrategyAttachment  Strategy = "attachment"
	StrategySummary     Strategy = "summary"
	StrategyExcerpt     Strategy = "excerpt"
	StrategyPlaceholder Strategy = "placeholder"
	StrategyOmitted     Strategy = "omitted"
)

// UnavailableText stands in for a document whose file could not be fetched.
const UnavailableText = "The file could not be retrieved from storage."

// minSnippetBytes is the smallest remaining budget worth spending.
const minSnippetBytes = 64

var (
	errNotAttachable   = errors.New("format not accepted as attachment")
	errNoText          = errors.New("no readable text")
	errBudgetExhausted = errors.New("context budget exhausted")
)

// Fragment is the single representation of one document in the payload.
type Fragment struct {
	Title      string
	Strategy   Strategy
	Snippets   []types.TextSnippet
	Attachment *types.AttachmentRef
	Note       string
}

func (f *Fragment) apply(p *types.ContextPayload) {
	p.Snippets = append(p.Snippets, f.Snippets...)
	if f.Attachment != nil {
		p.Attachments = append(p.Attachments, *f.Attachment)
	}
	if f.Note != "" {
		p.Notes = append(p.Notes, f.Note)
	}
}

// budget tracks the injected text still allowed in this request.
type budget struct {
	remaining int
}

func newBudget(total int) *budget {
	return &budget{remaining: total}
}

// fit returns the prefix of text that fits and charges it. ok is false when
// nothing useful fits.
func (b *budget) fit(text string) (string, bool) {
	if b.remaining < minSnippetBytes && b.remaining < len(text) {
		return "", false
	}
	if len(text) > b.remaining {
		head := chunk.Split(text, b.remaining, 1)
		if len(head) == 0 {
			return "", false
		}
		text = head[0]
	}
	b.remaining -= len(text)
	return text, true
}

// source is one document with lazily fetched content, shared by strategies.
type source struct {
	doc types.DocumentRef

	blob      types.Blob
	text      string
	extracted bool
	readable  bool
}

type strategyFunc func(ctx context.Context, src *source, b *budget) (*Fragment, error)

type namedStrategy struct {
	name Strategy
	run  strategyFunc
}

// fragmentFor returns exactly one fragment for doc. Strategies are tried in
// order attachment, summary, excerpt; the placeholder always succeeds.
func (a *Assembler) fragmentFor(ctx context.Context, doc types.DocumentRef, b *budget) *Fragment {
	if doc.IsInlineContent {
		return a.inlineFragment(doc, b)
	}

	blob, err := a.blobs.Download(ctx, doc.StorageLocator)
	if err != nil {
		logging.ContextWarn("download %q (%s) failed: %v", doc.Title, doc.StorageLocator, err)
		return placeholderFragment(doc.Title, UnavailableText, b)
	}
	blob.MediaType = firstNonEmpty(doc.MediaType, blob.MediaType)
	src := &source{doc: doc, blob: blob}

	chain := []namedStrategy{
		{StrategyAttachment, a.attach},
		{StrategySummary, a.summarize},
		{StrategyExcerpt, a.excerpt},
	}
	for _, s := range chain {
		frag, err := s.run(ctx, src, b)
		if err == nil {
			frag.Title, frag.Strategy = doc.Title, s.name
			return frag
		}
		logging.ContextDebug("strategy %s for %q: %v", s.name, doc.Title, err)
		if errors.Is(err, errNoText) {
			break
		}
	}

	// readable text that fit nowhere means the budget ran out
	if src.extracted && src.readable {
		return omittedFragment(doc.Title)
	}
	return placeholderFragment(doc.Title, summarizer.Placeholder, b)
}

func (a *Assembler) inlineFragment(doc types.DocumentRef, b *budget) *Fragment {
	if strings.TrimSpace(doc.InlineText) == "" {
		return placeholderFragment(doc.Title, summarizer.Placeholder, b)
	}
	snippets, err := a.snippets(doc.Title, doc.InlineText, b)
	if err != nil {
		return omittedFragment(doc.Title)
	}
	return &Fragment{Title: doc.Title, Strategy: StrategyInline, Snippets: snippets}
}

// attach hands the raw file to the model.
func (a *Assembler) attach(ctx context.Context, src *source, _ *budget) (*Fragment, error) {
	if !Attachable(src.blob.MediaType, src.doc.Title) {
		return nil, errNotAttachable
	}
	handle, err := a.model.UploadAttachment(ctx, src.blob.Data, src.blob.MediaType, src.doc.Title)
	if err != nil {
		return nil, err
	}
	return &Fragment{Attachment: &types.AttachmentRef{
		Label:        src.doc.Title,
		RemoteHandle: handle,
		MediaType:    src.blob.MediaType,
	}}, nil
}

// summarize extracts text, chunks it, and condenses each chunk with the
// model. Any failed chunk fails the whole strategy so a document never mixes
// summaries with another representation.
func (a *Assembler) summarize(ctx context.Context, src *source, b *budget) (*Fragment, error) {
	if err := a.extractOnce(ctx, src); err != nil {
		return nil, err
	}
	chunks := chunk.Split(src.text, a.cfg.ChunkBytes, a.cfg.MaxChunks)
	if len(chunks) == 0 {
		chunks = []string{src.text}
	}

	summaries := make([]string, len(chunks))
	for i, c := range chunks {
		summary, err := a.summar.Summarize(ctx, c, src.doc.Title)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		summaries[i] = summary
	}

	var kept []string
	for _, summary := range summaries {
		piece, ok := b.fit(summary)
		if !ok {
			break
		}
		kept = append(kept, piece)
		if len(piece) < len(summary) {
			break
		}
	}
	if len(kept) == 0 {
		return nil, errBudgetExhausted
	}
	out := make([]types.TextSnippet, len(kept))
	for i, text := range kept {
		out[i] = types.TextSnippet{
			Label: fmt.Sprintf("%s [%d/%d] (summary)", src.doc.Title, i+1, len(kept)),
			Text:  text,
		}
	}
	return &Fragment{Snippets: out}, nil
}

// excerpt injects the extracted text itself, chunked.
func (a *Assembler) excerpt(ctx context.Context, src *source, b *budget) (*Fragment, error) {
	if err := a.extractOnce(ctx, src); err != nil {
		return nil, err
	}
	snippets, err := a.snippets(src.doc.Title, src.text, b)
	if err != nil {
		return nil, err
	}
	return &Fragment{Snippets: snippets}, nil
}

// snippets chunks text within the remaining budget, labeling each piece
// "title [i/n]".
func (a *Assembler) snippets(title, text string, b *budget) ([]types.TextSnippet, error) {
	var kept []string
	for _, c := range chunk.Split(text, a.cfg.ChunkBytes, a.cfg.MaxChunks) {
		piece, ok := b.fit(c)
		if !ok {
			break
		}
		kept = append(kept, piece)
		if len(piece) < len(c) {
			break
		}
	}
	if len(kept) == 0 {
		return nil, errBudgetExhausted
	}
	out := make([]types.TextSnippet, len(kept))
	for i, c := range kept {
		out[i] = types.TextSnippet{Label: fmt.Sprintf("%s [%d/%d]", title, i+1, len(kept)), Text: c}
	}
	return out, nil
}

// extractOnce runs the extractor at most once per source, bounded by the
// extraction timeout.
func (a *Assembler) extractOnce(ctx context.Context, src *source) error {
	if !src.extracted {
		src.extracted = true
		src.text, src.readable = a.extractText(ctx, src)
	}
	if !src.readable {
		return errNoText
	}
	return nil
}

func (a *Assembler) extractText(ctx context.Context, src *source) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ExtractionTimeout)
	defer cancel()

	format := extract.Classify(src.blob.MediaType, src.doc.Title)
	type result struct {
		text string
		ok   bool
	}
	done := make(chan result, 1)
	go func() {
		text, ok := extract.ExtractWithOptions(src.blob.Data, src.blob.MediaType, src.doc.Title,
			extract.Options{MaxSheets: a.cfg.MaxSheets})
		done <- result{text, ok}
	}()

	select {
	case r := <-done:
		metrics.ObserveExtraction(format.String(), r.ok)
		return r.text, r.ok
	case <-ctx.Done():
		logging.ExtractWarn("extraction of %q timed out: %v", src.doc.Title, ctx.Err())
		metrics.ObserveExtraction(format.String(), false)
		return "", false
	}
}

func placeholderFragment(title, text string, b *budget) *Fragment {
	fitted, ok := b.fit(text)
	if !ok {
		return omittedFragment(title)
	}
	return &Fragment{
		Title:    title,
		Strategy: StrategyPlaceholder,
		Snippets: []types.TextSnippet{{Label: title, Text: fitted}},
	}
}

func omittedFragment(title string) *Fragment {
	return &Fragment{
		Title:    title,
		Strategy: StrategyOmitted,
		Note:     fmt.Sprintf("The content of %q was left out because the context budget was used up.", title),
	}
}

// Attachable reports whether the model accepts the file directly.
func Attachable(mediaType, filename string) bool {
	switch extract.Classify(mediaType, filename) {
	case extract.FormatPDF, extract.FormatText, extract.FormatCSV:
		return true
	case extract.FormatUnknown:
		return strings.HasPrefix(strings.ToLower(mediaType), "image/")
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
