package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuskondo/docquiz/internal/config"
	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/usecase"
	"github.com/yuskondo/docquiz/internal/infrastructure/llm/ollama"
	"github.com/yuskondo/docquiz/internal/infrastructure/queue/nats"
	"github.com/yuskondo/docquiz/internal/infrastructure/repository/postgres"
	"github.com/yuskondo/docquiz/internal/infrastructure/rerank/httprerank"
	"github.com/yuskondo/docquiz/internal/infrastructure/resilience"
	"github.com/yuskondo/docquiz/internal/infrastructure/search/memindex"
	"github.com/yuskondo/docquiz/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Ask     *usecase.AskService
	Quiz    *usecase.QuizService
	Sources *usecase.SourcesService

	Pool         *usecase.ChunkPool
	KeywordIndex *memindex.Index
	Queue        *nats.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewQuizSetRepository(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init index event queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, executor)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	keywordIndex := memindex.New(vectorDB, cfg.PoolScrollBatch, logger)
	reranker := httprerank.New(cfg.RerankURL, time.Duration(cfg.RerankTimeoutSeconds)*time.Second, executor)

	retrieval := usecase.NewRetrievalService(
		ollamaClient,
		vectorDB,
		keywordIndex,
		vectorDB,
		reranker,
		usecase.RetrievalConfig{
			RRFK:           cfg.RAGFusionRRFK,
			SemanticWeight: cfg.RAGSemanticWeight,
			CandidateRatio: cfg.RAGCandidateRatio,
			CandidateMin:   cfg.RAGCandidateMin,
			CandidateMax:   cfg.RAGCandidateMax,
			RerankRatio:    cfg.RAGRerankRatio,
			RerankMin:      cfg.RAGRerankMin,
			RerankMax:      cfg.RAGRerankMax,
			ScoreThreshold: cfg.RAGScoreThreshold,
			GapThreshold:   cfg.RAGGapThreshold,
			TopK:           cfg.RAGTopK,
			QuoteMaxRunes:  cfg.RAGQuoteMaxRunes,
		},
		logger,
	)

	pool := usecase.NewChunkPool(vectorDB, usecase.PoolConfig{
		ScrollBatchSize: cfg.PoolScrollBatch,
		MaxIDsPerSource: cfg.PoolMaxIDsPerSource,
	}, logger)

	selector, validator, err := quizTables(cfg.QuizTablesPath)
	if err != nil {
		return nil, err
	}

	quiz := usecase.NewQuizService(
		pool,
		vectorDB,
		usecase.NewStatementGenerator(ollamaClient, cfg.QuizQuoteMaxRunes, logger),
		store,
		usecase.QuizConfig{
			MaxCount:                 cfg.QuizMaxCount,
			MaxAttempts:              cfg.QuizMaxAttempts,
			WallClockBudget:          time.Duration(cfg.QuizWallClockSeconds) * time.Second,
			MaxConsecutiveDuplicates: cfg.QuizMaxConsecutiveDups,
			SampleMultiplier:         cfg.QuizSampleMultiplier,
			CitationsPerGroup:        cfg.QuizCitationsPerGroup,
			QuoteMaxRunes:            cfg.QuizQuoteMaxRunes,
		},
		selector,
		validator,
		logger,
	)

	return &App{
		Config: cfg,

		Ask:     usecase.NewAskService(retrieval, ollamaClient, logger),
		Quiz:    quiz,
		Sources: usecase.NewSourcesService(pool),

		Pool:         pool,
		KeywordIndex: keywordIndex,
		Queue:        queue,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// InvalidateCaches drops every cached view of the chunk corpus.
func (a *App) InvalidateCaches() {
	a.Pool.Invalidate()
	a.KeywordIndex.Invalidate()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// quizTables merges the optional yaml tuning file over the built-in
// selector and validator tables.
func quizTables(path string) (usecase.SelectorTables, usecase.ValidatorTables, error) {
	selector := usecase.DefaultSelectorTables()
	validator := usecase.DefaultValidatorTables()

	overrides, err := config.LoadQuizTables(path)
	if err != nil {
		return selector, validator, fmt.Errorf("load quiz tables: %w", err)
	}
	if overrides == nil {
		return selector, validator, nil
	}

	if overrides.MinStatementRunes > 0 {
		validator.MinStatementRunes = overrides.MinStatementRunes
	}
	if len(overrides.VaguenessMarkers) > 0 {
		validator.VaguenessMarkers = overrides.VaguenessMarkers
	}
	for tier, keywords := range overrides.Tiers {
		difficulty, ok := domain.ParseDifficulty(tier)
		if !ok {
			return selector, validator, fmt.Errorf("quiz tables: unknown tier %q", tier)
		}
		words := make([]usecase.WeightedKeyword, 0, len(keywords))
		for _, kw := range keywords {
			words = append(words, usecase.WeightedKeyword{Word: kw.Word, Weight: kw.Weight})
		}
		selector.Tiers[difficulty] = words
	}
	return selector, validator, nil
}
