package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avolkov/grounded-search/internal/config"
	"github.com/avolkov/grounded-search/internal/core/domain"
	"github.com/avolkov/grounded-search/internal/core/ports"
	"github.com/avolkov/grounded-search/internal/core/usecase"
	rediscache "github.com/avolkov/grounded-search/internal/infrastructure/cache/redis"
	"github.com/avolkov/grounded-search/internal/infrastructure/llm/ollama"
	"github.com/avolkov/grounded-search/internal/infrastructure/queue/nats"
	"github.com/avolkov/grounded-search/internal/infrastructure/repository/postgres"
	"github.com/avolkov/grounded-search/internal/infrastructure/resilience"
	"github.com/avolkov/grounded-search/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.SourceRepository
	Searcher ports.Searcher
	Indexer  ports.RecordIndexer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSourceRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig()).WithLogger(logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	var judge ports.RerankJudge
	if cfg.SearchUseLLMJudge {
		judge = ollama.NewJudge(ollamaClient)
	} else {
		judge = usecase.NewLexicalJudge()
	}

	store := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)

	var cache ports.ResponseCache
	var cacheCloser func()
	if cfg.RedisURL != "" {
		redisCache, err := rediscache.New(ctx, cfg.RedisURL, logger)
		if err != nil {
			// The cache is an optimization; a dead Redis must not block startup.
			logger.Warn("response_cache_disabled", "error", err)
		} else {
			cache = redisCache
			cacheCloser = func() { _ = redisCache.Close() }
		}
	}

	filterKeys := make(map[string]struct{}, len(cfg.SearchFilterKeys))
	for _, key := range cfg.SearchFilterKeys {
		filterKeys[key] = struct{}{}
	}

	searcher := usecase.NewSearchPipeline(embedder, store, judge, generator, cache, usecase.PipelineConfig{
		Limits: domain.SearchLimits{
			DefaultTopK: cfg.SearchDefaultTopK,
			MaxTopK:     cfg.SearchMaxTopK,
			FilterKeys:  filterKeys,
		},
		RRFK:              cfg.SearchFusionRRFK,
		DecayHalfLife:     time.Duration(cfg.SearchDecayHalfLifeH) * time.Hour,
		MinScoreThreshold: cfg.SearchMinScore,
		HybridCandidates:  cfg.SearchHybridCandidates,
		RerankTopN:        cfg.SearchRerankTopN,
		StageTimeout:      time.Duration(cfg.SearchStageTimeoutSec) * time.Second,
		CacheTTL:          time.Duration(cfg.SearchCacheTTLSec) * time.Second,
	}, logger)

	indexer := usecase.NewIndexRecordsUseCase(repo, embedder, store, logger)

	return &App{
		Config:   cfg,
		Queue:    queue,
		Repo:     repo,
		Searcher: searcher,
		Indexer:  indexer,

		closeFn: func() {
			queue.Close()
			if cacheCloser != nil {
				cacheCloser()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
