package main

import (
	"context"
	"fmt"

	"credence/internal/api"
	"credence/internal/assembly"
	"credence/internal/assistant"
	"credence/internal/command"
	"credence/internal/config"
	"credence/internal/logging"
	"credence/internal/perception"
	"credence/internal/rbac"
	"credence/internal/retrieval"
	"credence/internal/store"
	"credence/internal/summarizer"
)

// app holds the wired pipeline for one process.
type app struct {
	store    *store.SQLiteStore
	blobs    *store.FSBlobStore
	auth     *rbac.Authorizer
	resolver *retrieval.Resolver
	service  *assistant.Service
}

// openStore opens only the storage layer. Admin commands use it without a
// model key.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if st.LegacyDocuments() {
		logging.Get(logging.CategoryBoot).Warn("documents table uses the legacy schema; run `credence migrate`")
	}
	return st, nil
}

// newApp wires every collaborator from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "newApp")
	defer timer.Stop()

	if err := cfg.Validate(); err != nil {
		logging.BootError("config rejected: %v", err)
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := store.NewFSBlobStore(cfg.Store.BlobRoot)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	gcfg := perception.DefaultGeminiConfig(cfg.LLM.APIKey)
	gcfg.Model = cfg.LLM.Model
	gcfg.SummaryModel = cfg.LLM.SummaryModel
	gcfg.RequestsPerSecond = cfg.LLM.RequestsPerSecond
	gcfg.Burst = cfg.LLM.Burst
	gcfg.UploadTimeout = cfg.GetUploadTimeout()
	model, err := perception.NewGeminiClient(ctx, gcfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	auth := rbac.NewAuthorizer(st)
	resolver := retrieval.NewResolver(st, retrieval.ResolverConfig{
		ResolveLimit: cfg.Context.ResolveLimit,
		ListLimit:    cfg.Context.ListLimit,
	})
	summ := summarizer.New(model, summarizer.Config{
		Timeout:  cfg.GetLLMTimeout(),
		MaxBytes: cfg.Context.ChunkBytes,
	})
	assembler := assembly.NewAssembler(auth, st, st, blobs, model, summ, assembly.Config{
		RecentTurns:       cfg.Context.RecentTurns,
		OpenItems:         cfg.Context.OpenItems,
		RecentDocuments:   cfg.Context.RecentDocuments,
		ChunkBytes:        cfg.Context.ChunkBytes,
		MaxChunks:         cfg.Context.MaxChunks,
		ExtractionTimeout: cfg.GetExtractionTimeout(),
		MaxSheets:         cfg.Extraction.MaxSheets,
	})
	executor := command.NewExecutor(auth, st, st, st)

	service := assistant.NewService(assistant.Deps{
		Auth:         auth,
		Resolver:     resolver,
		Assembler:    assembler,
		Model:        model,
		Executor:     executor,
		ChatLog:      st,
		ReplyTimeout: cfg.GetLLMTimeout(),
	})

	logging.Boot("pipeline ready: model=%s db=%s blobs=%s", model.Model(), cfg.Store.DatabasePath, cfg.Store.BlobRoot)
	return &app{
		store:    st,
		blobs:    blobs,
		auth:     auth,
		resolver: resolver,
		service:  service,
	}, nil
}

func (a *app) server(cfg *config.Config) *api.Server {
	return api.NewServer(api.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}, a.service, a.resolver, a.auth, api.HeaderIdentity{})
}

func (a *app) Close() error {
	return a.store.Close()
}
