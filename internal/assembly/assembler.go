// Package assembly builds the bounded context payload handed to the language
// model: permissions, group identity, recent turns, open work items, document
// metadata and the content of resolved documents.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"credence/internal/logging"
	"credence/internal/metrics"
	"credence/internal/types"

	"golang.org/x/sync/errgroup"
)

// Config bounds what goes into one payload.
type Config struct {
	RecentTurns     int
	OpenItems       int
	RecentDocuments int

	// ChunkBytes * MaxChunks is the injected text budget for one request.
	ChunkBytes int
	MaxChunks  int

	ExtractionTimeout time.Duration
	MaxSheets         int
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		RecentTurns:       10,
		OpenItems:         10,
		RecentDocuments:   10,
		ChunkBytes:        200 * 1024,
		MaxChunks:         5,
		ExtractionTimeout: 30 * time.Second,
		MaxSheets:         5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RecentTurns <= 0 {
		c.RecentTurns = d.RecentTurns
	}
	if c.OpenItems <= 0 {
		c.OpenItems = d.OpenItems
	}
	if c.RecentDocuments <= 0 {
		c.RecentDocuments = d.RecentDocuments
	}
	if c.ChunkBytes <= 0 {
		c.ChunkBytes = d.ChunkBytes
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = d.MaxChunks
	}
	if c.ExtractionTimeout <= 0 {
		c.ExtractionTimeout = d.ExtractionTimeout
	}
	if c.MaxSheets <= 0 {
		c.MaxSheets = d.MaxSheets
	}
	return c
}

// Budget is the total injected text allowed per request.
func (c Config) Budget() int {
	return c.ChunkBytes * c.MaxChunks
}

// Authorizer computes a caller's authorization in a group.
type Authorizer interface {
	Authorize(ctx context.Context, userID, groupID string) (types.Authorization, error)
}

// Summarizer condenses extracted text.
type Summarizer interface {
	Summarize(ctx context.Context, text, title string) (string, error)
}

// Request describes one payload to build.
type Request struct {
	Caller  types.Caller
	GroupID string

	// Documents are the resolved documents, one per reference.
	Documents []types.DocumentRef

	// Notes are passed through to the payload verbatim.
	Notes []string
}

// Assembler builds context payloads.
type Assembler struct {
	auth   Authorizer
	store  types.ContextStore
	docs   types.DocumentStore
	blobs  types.BlobStore
	model  types.LanguageModel
	summar Summarizer
	cfg    Config
}

// NewAssembler wires an Assembler. model is used for attachment uploads and
// summar for the summary fallback.
func NewAssembler(auth Authorizer, store types.ContextStore, docs types.DocumentStore, blobs types.BlobStore,
	model types.LanguageModel, summar Summarizer, cfg Config) *Assembler {
	return &Assembler{
		auth:   auth,
		store:  store,
		docs:   docs,
		blobs:  blobs,
		model:  model,
		summar: summar,
		cfg:    cfg.withDefaults(),
	}
}

// Build assembles the payload for req. Authorization and group lookup errors
// are returned; failures reading turns, tasks or documents leave those
// sections empty. Document content never fails the build.
func (a *Assembler) Build(ctx context.Context, req Request) (*types.ContextPayload, error) {
	timer := logging.StartTimer(logging.CategoryContext, "Build")
	defer timer.Stop()

	payload := &types.ContextPayload{
		GroupID:    req.GroupID,
		CallerName: req.Caller.Name,
	}

	var (
		authz types.Authorization
		group types.Group
		turns []types.ChatTurn
		docs  []types.DocumentRef
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		authz, err = a.auth.Authorize(gctx, req.Caller.UserID, req.GroupID)
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		group, err = a.store.GetGroup(gctx, req.GroupID)
		if err != nil {
			return fmt.Errorf("group %s: %w", req.GroupID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		turns, err = a.store.RecentTurns(gctx, req.GroupID, a.cfg.RecentTurns)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ContextWarn("recent turns unavailable for %s: %v", req.GroupID, err)
			turns = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		docs, err = a.docs.ListDocuments(gctx, req.GroupID, a.cfg.RecentDocuments)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ContextWarn("document list unavailable for %s: %v", req.GroupID, err)
			docs = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload.GroupName = group.Name
	payload.Permissions = authz

	// storage returns newest first
	slices.Reverse(turns)
	payload.RecentTurns = turns

	payload.OpenItems = a.openItems(ctx, req, authz)

	for i, d := range docs {
		if i >= a.cfg.RecentDocuments {
			break
		}
		payload.Documents = append(payload.Documents, types.DocumentMeta{
			Title:      d.Title,
			MediaType:  d.MediaType,
			UploadedAt: d.UploadedAt,
		})
	}

	budget := newBudget(a.cfg.Budget())
	audit := logging.Audit(logging.RequestIDFromContext(ctx), req.GroupID, req.Caller.UserID)
	for _, doc := range req.Documents {
		frag := a.fragmentFor(ctx, doc, budget)
		frag.apply(payload)
		metrics.Fragments.WithLabelValues(string(frag.Strategy)).Inc()
		audit.FragmentAttached(doc.Title, string(frag.Strategy))
	}

	payload.Notes = append(payload.Notes, req.Notes...)
	metrics.InjectedBytes.Observe(float64(payload.InjectedBytes()))

	logging.Context("payload for %s: turns=%d items=%d docs=%d snippets=%d attachments=%d injected=%d",
		req.GroupID, len(payload.RecentTurns), len(payload.OpenItems), len(payload.Documents),
		len(payload.Snippets), len(payload.Attachments), payload.InjectedBytes())
	return payload, nil
}

// openItems are the caller's own open tasks, or every open task in the group
// for elevated roles and holders of view_all_tasks.
func (a *Assembler) openItems(ctx context.Context, req Request, authz types.Authorization) []types.OpenItem {
	assignee := req.Caller.UserID
	if authz.Role.Elevated() || authz.Has(types.PermViewAllTasks) {
		assignee = ""
	}
	items, err := a.store.OpenTasks(ctx, req.GroupID, assignee, a.cfg.OpenItems)
	if err != nil {
		logging.ContextWarn("open tasks unavailable for %s: %v", req.GroupID, err)
		return nil
	}
	if len(items) > a.cfg.OpenItems {
		items = items[:a.cfg.OpenItems]
	}
	return items
}
