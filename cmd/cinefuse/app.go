package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cinefuse/internal/config"
	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/cinefuse/internal/db/redis"
	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/request"
	logpkg "github.com/kailas-cloud/cinefuse/internal/logger"
	"github.com/kailas-cloud/cinefuse/internal/metrics"
	"github.com/kailas-cloud/cinefuse/internal/repository/embcache"
	movierepo "github.com/kailas-cloud/cinefuse/internal/repository/movie"
	searchrepo "github.com/kailas-cloud/cinefuse/internal/repository/search"
	openaiEmb "github.com/kailas-cloud/cinefuse/internal/transport/openai"
	"github.com/kailas-cloud/cinefuse/internal/transport/tmdb"
	embeddinguc "github.com/kailas-cloud/cinefuse/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/cinefuse/internal/usecase/health"
	movieuc "github.com/kailas-cloud/cinefuse/internal/usecase/movie"
	searchuc "github.com/kailas-cloud/cinefuse/internal/usecase/search"
)

// app is the composition root shared by every subcommand.
type app struct {
	env      string
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	movies   *movieuc.Service
	search   *searchuc.Service
	health   *healthuc.Service
	defaults request.Defaults
}

// newApp loads config, connects to the store and wires the services.
func newApp(ctx context.Context, env string) (*app, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	defaults, err := searchDefaults(cfg.Search)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	logger.Debug("Connected to database",
		zap.String("driver", cfg.Database.Driver),
		zap.Strings("addrs", cfg.Database.Addrs),
	)

	// Explicit registration, no init().
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterHTTPMetrics()

	queryEmb := buildEmbedder(cfg.Embedding, cfg.Storage.KeyPrefix, cfg.Embedding.QueryInstruction, store, logger)
	docEmb := buildEmbedder(cfg.Embedding, cfg.Storage.KeyPrefix, cfg.Embedding.DocumentInstruction, store, logger)

	movieRepo := movierepo.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions).
		WithHNSW(db.HNSW{
			M:              cfg.Index.HNSWM,
			EFConstruction: cfg.Index.HNSWEFConstruct,
			EFRuntime:      cfg.Index.HNSWEFRuntime,
		})
	searchRepo := searchrepo.New(store, cfg.Storage.KeyPrefix)

	return &app{
		env:    env,
		cfg:    cfg,
		logger: logger,
		store:  store,
		movies: movieuc.New(movieRepo, docEmb, logger).
			WithBatchSize(cfg.Import.BatchSize).
			WithConcurrency(cfg.Import.Concurrency).
			WithEnricher(buildEnricher(cfg.TMDB, logger)),
		search: searchuc.New(searchRepo, searchRepo, queryEmb, movieRepo, searchuc.Config{
			EmbedTimeout:     cfg.Search.EmbedTimeout(),
			RetrievalTimeout: cfg.Search.RetrievalTimeout(),
		}),
		health: healthuc.New(store, embeddingHealth{queryEmb}).
			WithIndex(movieRepo).
			WithLogger(logger),
		defaults: defaults,
	}, nil
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

func openStore(cfg config.DatabaseConfig) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverRedis:
		store, err = dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
	case config.DriverPostgres:
		store, err = postgres.NewStore(postgres.Config{DSN: cfg.DSN, MaxOpenConns: cfg.MaxOpenConns})
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// embeddingHealth probes the provider behind the decorator chain. An embedder
// without a health check is reported healthy.
type embeddingHealth struct {
	embedder domain.Embedder
}

func (h embeddingHealth) HealthCheck(ctx context.Context) error {
	hc, ok := h.embedder.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

// searchDefaults turns the search config section into request defaults.
func searchDefaults(cfg config.SearchConfig) (request.Defaults, error) {
	params := fusion.Params{
		KeywordWeight:  cfg.KeywordWeight,
		SemanticWeight: cfg.SemanticWeight,
		K:              cfg.RRFK,
		Alpha:          cfg.Alpha,
	}
	fc, err := fusion.Parse(cfg.Strategy, params)
	if err != nil {
		return request.Defaults{}, fmt.Errorf("search defaults: %w", err)
	}
	return request.Defaults{
		Limit:        cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		CandidateCap: cfg.CandidateCap,
		Fusion:       fc,
		FusionParams: params,
		Boosts:       cfg.Boosts,
	}, nil
}

// buildEnricher returns nil unless TMDB enrichment is enabled with an API key.
func buildEnricher(cfg config.TMDBConfig, logger *zap.Logger) movieuc.Enricher {
	if !cfg.Active() {
		return nil
	}
	logger.Info("TMDB enrichment enabled", zap.Float64("requests_per_second", cfg.RequestsPerSecond))
	return tmdb.NewClient(&tmdb.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Language:          cfg.Language,
		Timeout:           cfg.Timeout(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
}

// buildEmbedder assembles the decorator chain: OpenAI -> Instrumented -> Cached -> Instruction.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	keyPrefix, instruction string,
	store db.Store,
	logger *zap.Logger,
) domain.Embedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.APIKey,
		Protocol:   cfg.Protocol,
		Host:       cfg.Host,
		Port:       cfg.Port,
		Path:       cfg.Path,
		Timeout:    cfg.Timeout(),
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})
	return decorateEmbedder(base, cfg, keyPrefix, instruction, store, logger)
}

// decorateEmbedder validates provider replies before they reach either cache tier,
// so a malformed vector is never persisted.
func decorateEmbedder(
	base domain.Embedder,
	cfg config.EmbeddingConfig,
	keyPrefix, instruction string,
	store db.Store,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder = embeddinguc.NewInstrumentedEmbedder(
		base, cfg.Provider, cfg.Model, cfg.Dimensions, logger)

	embedder = embcache.New(embedder, store, embcache.Config{
		KeyPrefix:  keyPrefix,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		MemorySize: cfg.CacheSize,
	}, metrics.EmbeddingCacheTotal, logger)

	// Outermost, so the instruction is part of the cache key.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}
