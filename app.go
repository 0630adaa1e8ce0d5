package main

import (
	"context"
	"fmt"

	"github.com/gisa-chat/server/internal/agent/dataset"
	"github.com/gisa-chat/server/internal/agent/graph"
	"github.com/gisa-chat/server/internal/agent/graph/conversations"
	"github.com/gisa-chat/server/internal/agent/llm"
	"github.com/gisa-chat/server/internal/agent/model"
	"github.com/gisa-chat/server/internal/agent/repo"
	"github.com/gisa-chat/server/internal/agent/router"
	"github.com/gisa-chat/server/internal/agent/suggestions"
	"github.com/gisa-chat/server/internal/agent/tools"
	"github.com/gisa-chat/server/internal/embedding"
	"github.com/gisa-chat/server/internal/metrics"
	"github.com/gisa-chat/server/internal/resources"
	"github.com/gisa-chat/server/internal/retrieval"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// App is the wired engine shared by every command.
type App struct {
	Config   *AppConfig
	Runner   graph.Runner
	Recorder *conversations.Recorder
	Metrics  *metrics.Metrics

	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *App) onClose(f func()) {
	a.closers = append(a.closers, f)
}

func openDataset(ctx context.Context, cfg *AppConfig, app *App) (model.Dataset, error) {
	if cfg.Data.Source == "postgres" {
		pool, err := cfg.Postgres.New(ctx)
		if err != nil {
			return nil, err
		}
		app.onClose(pool.Close)
		logx.Info().Msg("Dataset served from Postgres")
		return dataset.NewPostgresDataset(pool), nil
	}
	data, err := dataset.LoadCSVDir(cfg.Data.CSVDir)
	if err != nil {
		return nil, err
	}
	logx.Info().Str("dir", cfg.Data.CSVDir).Msg("Dataset loaded from CSV")
	return data, nil
}

func encoderFactory(cfg *AppConfig) resources.EncoderFactory {
	return func(ctx context.Context) (embedding.Encoder, error) {
		enc, err := embedding.NewGenAIEncoder(ctx, cfg.APIKey, cfg.Embedding.Model, cfg.Embedding.TaskType)
		if err != nil {
			return nil, err
		}
		return embedding.NewCachedEncoder(enc, cfg.Embedding.CacheSize)
	}
}

// buildApp wires resources, collaborators and the turn graph. Redis is
// optional: without it turns are not recorded and details cannot be shown.
func buildApp(ctx context.Context, cfg *AppConfig) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	data, err := openDataset(ctx, cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}

	mgr := resources.New(
		resources.WithVectorPath(cfg.Vector.Path),
		resources.WithEncoderFactory(encoderFactory(cfg)),
	)
	app.onClose(func() {
		if err := mgr.Close(); err != nil {
			logx.Warn().Err(err).Msg("Error releasing vector index")
		}
	})
	retriever := retrieval.NewRetriever(mgr)

	querier, err := llm.NewGeminiQuerier(ctx, llm.GeminiConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Router.Model,
		MaxTokens: cfg.Router.MaxTokens,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	deps := tools.Deps{Data: data, Search: retriever, SearchTopK: cfg.Vector.TopK}
	var turns model.TurnRepository
	if rdb, err := cfg.Redis.New(ctx); err != nil {
		logx.Warn().Err(err).Msg("Redis unavailable; turns will not be recorded")
	} else {
		app.onClose(func() { _ = rdb.Close() })
		ttl, _ := cfg.turnTTL()
		r := repo.NewRedisTurnRepository(rdb, ttl, cfg.Turn.MaxTurns)
		deps.Pending = r
		turns = r
	}
	if turns != nil {
		app.Recorder = conversations.NewRecorder(turns)
	}

	runner, err := graph.BuildRunner(ctx, graph.Config{
		Router:      router.New(querier, cfg.Router, router.WithHints(retriever)),
		Tools:       tools.NewRegistry(deps),
		Suggestions: suggestions.New(cfg.Suggestions),
		Recorder:    app.Recorder,
		Metrics:     app.Metrics,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build turn graph: %w", err)
	}
	app.Runner = runner
	return app, nil
}
