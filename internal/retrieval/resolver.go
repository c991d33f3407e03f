// Package retrieval resolves document references in a user message to
// stored documents. Matching is lexical over titles: exact, then substring,
// most recent first.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"credence/internal/logging"
	"credence/internal/types"
)

const (
	// DefaultResolveLimit caps candidates returned by Resolve.
	DefaultResolveLimit = 5
	// DefaultListLimit caps entries returned by List.
	DefaultListLimit = 50
)

// Resolver looks up documents through the relational store.
type Resolver struct {
	docs         types.DocumentStore
	resolveLimit int
	listLimit    int
}

// ResolverConfig holds resolver limits. Zero values use the defaults.
type ResolverConfig struct {
	ResolveLimit int
	ListLimit    int
}

// NewResolver creates a resolver backed by docs.
func NewResolver(docs types.DocumentStore, cfg ResolverConfig) *Resolver {
	if cfg.ResolveLimit <= 0 {
		cfg.ResolveLimit = DefaultResolveLimit
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = DefaultListLimit
	}
	return &Resolver{
		docs:         docs,
		resolveLimit: cfg.ResolveLimit,
		listLimit:    cfg.ListLimit,
	}
}

// NormalizeCandidate trims whitespace and one layer of surrounding quotes.
func NormalizeCandidate(candidate string) string {
	c := strings.TrimSpace(candidate)
	for _, q := range []string{`"`, `'`, "`", "“”", "‘’"} {
		lq, rq := q, q
		if r := []rune(q); len(r) == 2 {
			lq, rq = string(r[0]), string(r[1])
		}
		if len(c) >= len(lq)+len(rq) && strings.HasPrefix(c, lq) && strings.HasSuffix(c, rq) {
			c = strings.TrimSpace(c[len(lq) : len(c)-len(rq)])
			break
		}
	}
	return c
}

// Resolve returns candidate documents for name in group, best first. Inline
// documents with text win outright. An empty result means nothing matched.
func (r *Resolver) Resolve(ctx context.Context, groupID, name string) ([]types.DocumentRef, error) {
	candidate := NormalizeCandidate(name)
	if candidate == "" {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryRetrieval, "Resolve")
	defer timer.Stop()

	inline, err := r.docs.FindInlineDocuments(ctx, groupID, candidate, r.resolveLimit)
	if err != nil {
		return nil, fmt.Errorf("find inline documents: %w", err)
	}
	var withText []types.DocumentRef
	for _, d := range inline {
		if strings.TrimSpace(d.InlineText) != "" {
			withText = append(withText, d)
		}
	}
	if len(withText) > 0 {
		logging.RetrievalDebug("resolved %q to %d inline documents in group %s", candidate, len(withText), groupID)
		return withText, nil
	}

	docs, err := r.docs.FindDocuments(ctx, groupID, candidate, r.resolveLimit)
	if errors.Is(err, types.ErrLegacySchema) {
		logging.RetrievalWarn("legacy document schema in group %s, deriving locators from access URLs", groupID)
		docs, err = r.resolveLegacy(ctx, groupID, candidate)
	}
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}

	if len(docs) > r.resolveLimit {
		docs = docs[:r.resolveLimit]
	}
	logging.Retrieval("resolved %q to %d documents in group %s", candidate, len(docs), groupID)
	return docs, nil
}

func (r *Resolver) resolveLegacy(ctx context.Context, groupID, candidate string) ([]types.DocumentRef, error) {
	legacy, err := r.docs.FindDocumentsLegacy(ctx, groupID, candidate, r.resolveLimit)
	if err != nil {
		return nil, err
	}
	out := make([]types.DocumentRef, 0, len(legacy))
	for _, l := range legacy {
		d := l.DocumentRef
		if d.StorageLocator == "" {
			d.StorageLocator = LocatorFromAccessURL(l.AccessURL)
		}
		if d.StorageLocator == "" {
			logging.RetrievalDebug("skipping %q: no locator derivable from %q", d.Title, l.AccessURL)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// List returns the group's documents for a listing reply, most recent first.
func (r *Resolver) List(ctx context.Context, groupID string) ([]types.DocumentRef, error) {
	docs, err := r.docs.ListDocuments(ctx, groupID, r.listLimit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(docs) > r.listLimit {
		docs = docs[:r.listLimit]
	}
	return docs, nil
}

const publicObjectMarker = "/object/public/"

// LocatorFromAccessURL derives a blob locator from a persisted public URL.
// For ".../object/public/<bucket>/<path>" it returns <path>; otherwise the
// URL path without its leading slash.
func LocatorFromAccessURL(accessURL string) string {
	raw := strings.TrimSpace(accessURL)
	if raw == "" {
		return ""
	}
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}

	if i := strings.Index(path, publicObjectMarker); i >= 0 {
		rest := path[i+len(publicObjectMarker):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j+1:]
		}
		return ""
	}
	return strings.TrimPrefix(path, "/")
}
