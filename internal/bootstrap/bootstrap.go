package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicore/medrag/internal/config"
	"github.com/clinicore/medrag/internal/core/ports"
	"github.com/clinicore/medrag/internal/core/usecase"
	"github.com/clinicore/medrag/internal/infrastructure/lexical"
	"github.com/clinicore/medrag/internal/infrastructure/llm/openai"
	"github.com/clinicore/medrag/internal/infrastructure/queue/nats"
	"github.com/clinicore/medrag/internal/infrastructure/repository/postgres"
	"github.com/clinicore/medrag/internal/infrastructure/resilience"
	"github.com/clinicore/medrag/internal/infrastructure/rules"
	"github.com/clinicore/medrag/internal/infrastructure/vector/milvus"
	"github.com/clinicore/medrag/internal/infrastructure/websearch"
)

// Options carries cross-cutting dependencies the config alone cannot build.
type Options struct {
	Logger *slog.Logger
	// EngineMetrics and ConsultMetrics are optional sinks; nil disables
	// recording.
	EngineMetrics  usecase.RetrievalMetrics
	ConsultMetrics usecase.ConsultMetrics
}

type App struct {
	Config config.Config

	Queue     ports.IndexEventQueue
	Lexical   *lexical.Provider
	ConsultUC ports.ConsultService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, options Options) (*App, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	historyRepo := postgres.NewHistoryRepository(db)
	if err := historyRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init event queue: %w", err)
	}

	ruleTable, synonymTable, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load rule tables: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	llmClient := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, openai.Options{
		ResilienceExecutor: executor,
	})
	completer := openai.NewCompleter(llmClient)
	embedder := openai.NewEmbedder(llmClient)
	generator := openai.NewGenerator(llmClient)

	vectorDB := milvus.New(cfg.MilvusURL, cfg.MilvusCollection, milvus.Options{
		ResilienceExecutor: executor,
	})

	lexicalProvider := lexical.NewProvider(vectorDB, lexical.Options{
		BatchSize:         cfg.LexicalBatchSize,
		MaxDocs:           cfg.LexicalMaxDocuments,
		ParallelThreshold: cfg.LexicalParallelThreshold,
		Workers:           cfg.LexicalBuildWorkers,
		Logger:            logger,
	})

	var augment ports.AugmentationProvider
	if cfg.BingAPIKey != "" {
		augment = websearch.NewBingClient(cfg.BingEndpoint, cfg.BingAPIKey, websearch.BingOptions{
			ResultCount: cfg.BingResultCount,
		})
	}

	optimizer := usecase.NewQueryOptimizer(completer, synonymTable, cfg.RewriteEnabled, cfg.NormalizeEnabled, logger)
	engine := usecase.NewRetrieveUseCase(embedder, vectorDB, lexicalProvider, completer, ruleTable, usecase.RetrievalConfig{
		TopKRetrieval:       cfg.TopKRetrieval,
		TopKRerank:          cfg.TopKRerank,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, options.EngineMetrics, logger)
	consultUC := usecase.NewConsultUseCase(
		optimizer,
		engine,
		augment,
		generator,
		historyRepo,
		cfg.HistoryTurns,
		cfg.ConfidenceThreshold,
		options.ConsultMetrics,
		logger,
	)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Lexical:   lexicalProvider,
		ConsultUC: consultUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
