package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/poornimagithubrit/Agentic-RAG/internal/config"
	"github.com/poornimagithubrit/Agentic-RAG/internal/llm"
	"github.com/poornimagithubrit/Agentic-RAG/internal/service"
	"github.com/poornimagithubrit/Agentic-RAG/internal/state"
	"github.com/poornimagithubrit/Agentic-RAG/internal/vector"
)

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	registry *state.Registry
	llm      *llm.Manager
	pipeline *service.Pipeline
	datasets *service.DatasetService
	index    *vector.Index
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, persist bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	strategy, err := service.ParseStrategy(cfg.Translator.Strategy)
	if err != nil {
		return nil, err
	}

	a.llm, err = llm.NewManager(llmConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "configure llm")
	}
	if !a.llm.Available() {
		logger.Infow("no language model configured", "strategy", strategy)
	}

	a.registry = state.NewRegistry(state.Options{
		Capacity: cfg.Registry.Capacity,
		TTL:      cfg.Registry.TTL,
	}, logger)
	a.closers = append(a.closers, func() error { a.registry.Close(); return nil })

	a.pipeline = service.NewPipeline(a.registry, service.NewModelTranslator(a.llm), service.Options{
		Strategy:        strategy,
		MaxRows:         cfg.Pipeline.MaxRows,
		SampleRows:      cfg.Pipeline.SampleRows,
		FallbackOnError: cfg.Pipeline.FallbackOnError,
	}, logger)

	var saver service.Saver = service.NopStore{}
	var fileStore *service.FileStore
	if persist {
		switch strings.ToLower(cfg.Storage.Kind) {
		case "file":
			fileStore, err = service.NewFileStore(cfg.Storage.Dir)
			if err != nil {
				return nil, err
			}
			saver = fileStore
		case "postgres":
			pg, err := service.NewPostgresStore(ctx, cfg.Storage.DSN)
			if err != nil {
				return nil, err
			}
			saver = pg
			a.closers = append(a.closers, pg.Close)
		}
	}
	a.datasets = service.NewDatasetService(a.registry, saver, logger)

	if fileStore != nil && cfg.Storage.Restore {
		n, err := a.datasets.Restore(ctx, fileStore)
		if err != nil {
			logger.Warnw("failed to restore uploads", "dir", cfg.Storage.Dir, "error", err)
		} else if n > 0 {
			logger.Infow("restored uploads", "datasets", n)
		}
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	snapshot := ""
	if persist {
		snapshot = cfg.Vector.SnapshotPath
	}
	a.index = vector.NewIndex(embedder, vector.Options{
		Workers:      cfg.Vector.Workers,
		SnapshotPath: snapshot,
	}, logger)
	if snapshot != "" {
		if err := a.index.Load(snapshot); err != nil {
			logger.Warnw("failed to load index snapshot", "path", snapshot, "error", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnw("shutdown error", "error", err)
		}
	}
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  cfg.LLM.Timeout,
	}
}

// newEmbedder builds the row embedder. Remote embedders share the LLM
// endpoint and key unless the embeddings section sets its own URL.
func newEmbedder(cfg *config.Config) (llm.Embedder, error) {
	provider := strings.ToLower(cfg.Embeddings.Provider)
	if provider == "hash" {
		return vector.NewHashEmbedder(cfg.Embeddings.Dims), nil
	}

	ec := llmConfig(cfg)
	ec.Provider = provider
	ec.EmbeddingModel = cfg.Embeddings.Model
	if cfg.Embeddings.BaseURL != "" {
		ec.BaseURL = cfg.Embeddings.BaseURL
	}
	if !strings.EqualFold(cfg.LLM.Provider, provider) {
		ec.Model = ""
		if cfg.Embeddings.BaseURL == "" {
			ec.BaseURL = ""
		}
	}
	client, err := llm.New(ec)
	if err != nil {
		return nil, errors.Wrapf(err, "configure %s embeddings", provider)
	}
	return client, nil
}
