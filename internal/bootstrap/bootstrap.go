package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/safety-permit-analyzer/internal/config"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/unit"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/usecase"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/chunking"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/extractor"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/extractor/pdfextract"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/llm/openai"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/safety-permit-analyzer/internal/infrastructure/vector/weaviate"
	"github.com/kirillkom/safety-permit-analyzer/internal/observability/logging"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Reader    ports.DocumentReader
	Retrieval ports.RetrievalBackend

	AnalyzeUC ports.PermitAnalyzer
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	EraseUC   ports.TenantEraser

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure document schema: %w", err)
	}
	reportCache := postgres.NewReportCache(db)
	if err := reportCache.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure report cache schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	weaviateClient := weaviate.New(cfg.WeaviateURL, cfg.WeaviateClass)
	retrieval := weaviate.SelectBackend(ctx, weaviateClient, weaviate.SelectorConfig{
		ForceMode: cfg.RetrievalForce,
	})

	llm, err := buildLanguageModel(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}

	phase1, err := unit.Roster(tuning.Phase1Units, llm)
	if err != nil {
		return nil, fmt.Errorf("build unit roster: %w", err)
	}

	analyzeCfg := usecase.AnalyzeConfig{
		UnitTimeout:    cfg.UnitTimeout,
		RetrievalLimit: cfg.RetrievalTopK,
		CacheTTL:       cfg.ReportCacheTTL,
	}
	if tuning.UnitTimeout > 0 {
		analyzeCfg.UnitTimeout = time.Duration(tuning.UnitTimeout)
	}
	if tuning.RetrievalTopK > 0 {
		analyzeCfg.RetrievalLimit = tuning.RetrievalTopK
	}
	if tuning.ReportCacheTTL > 0 {
		analyzeCfg.CacheTTL = time.Duration(tuning.ReportCacheTTL)
	}

	analyzeUC := usecase.NewAnalyzePermitUseCase(
		retrieval,
		phase1,
		unit.NewProtectionRecommender(llm),
		unit.NewSynthesis(llm),
		reportCache,
		analyzeCfg,
	)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	textExtractor := extractor.NewByMime(
		pdfextract.NewExtractor(storage),
		plaintext.NewExtractor(storage),
	)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(repo, textExtractor, chunker, retrieval)
	eraseUC := usecase.NewEraseTenantUseCase(retrieval)

	return &App{
		Config: cfg,

		Queue:     queue,
		Reader:    repo,
		Retrieval: retrieval,

		AnalyzeUC: analyzeUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,
		EraseUC:   eraseUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func buildLanguageModel(cfg config.Config, executor *resilience.Executor) (ports.LanguageModel, error) {
	switch cfg.LLMProvider {
	case "", "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaModel, executor), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, executor), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
