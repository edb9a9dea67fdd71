package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlscout/sqlscout/internal/api"
	"github.com/sqlscout/sqlscout/internal/config"
	"github.com/sqlscout/sqlscout/internal/explain"
	"github.com/sqlscout/sqlscout/internal/nl2sql"
	"github.com/sqlscout/sqlscout/internal/observability"
	"github.com/sqlscout/sqlscout/internal/pipeline"
	"github.com/sqlscout/sqlscout/internal/schema"
	"github.com/sqlscout/sqlscout/internal/store"
	duckstore "github.com/sqlscout/sqlscout/internal/store/duckdb"
	pgstore "github.com/sqlscout/sqlscout/internal/store/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlscout-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	st, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	generator, err := newGenerator(cfg)
	if err != nil {
		logger.Error("failed to initialize generation backend", slog.Any("error", err))
		os.Exit(1)
	}

	var explainGenerator nl2sql.Generator
	if cfg.AI.ExplainEnabled {
		explainGenerator = generator
	}

	cache := schema.NewCache(st, cfg.Pipeline.SampleRows, cfg.Pipeline.SchemaTTL)
	pipe := pipeline.New(cache, generator, st, explain.New(explainGenerator), logger, pipeline.Options{
		RowLimit:        cfg.Pipeline.RowLimit,
		GenerateTimeout: cfg.AI.Timeout,
		ExecuteTimeout:  cfg.Pipeline.ExecuteTimeout,
	})

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Pipeline:          pipe,
		Schema:            cache,
		Readiness:         api.CombineReadinessChecks(st.HealthCheck),
		DependencyTimeout: time.Second,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store", cfg.Store.Driver),
			slog.String("ai_provider", cfg.AI.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		return pgstore.Open(ctx, pgstore.Config{
			DSN:             cfg.Store.DSN,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
	default:
		return duckstore.Open(ctx, duckstore.Config{
			Path:         cfg.Store.Path,
			MaxOpenConns: cfg.Store.MaxOpenConns,
		})
	}
}

func newGenerator(cfg config.Config) (nl2sql.Generator, error) {
	generatorConfig := nl2sql.Config{
		BaseURL:       cfg.AI.BaseURL,
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		Temperature:   cfg.AI.Temperature,
		Timeout:       cfg.AI.Timeout,
		MaxRetries:    cfg.AI.MaxRetries,
		RetryInterval: cfg.AI.RetryInterval,
	}
	if cfg.AI.Provider == config.AIProviderOpenAI {
		return nl2sql.NewOpenAIGenerator(generatorConfig)
	}
	return nl2sql.NewOllamaGenerator(generatorConfig)
}
