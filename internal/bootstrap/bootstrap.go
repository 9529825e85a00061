package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/invoice-ingest/internal/config"
	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/core/ports"
	"github.com/kirillkom/invoice-ingest/internal/core/usecase"
	rediscache "github.com/kirillkom/invoice-ingest/internal/infrastructure/cache/redis"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/export"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/recognition"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/recognition/gemini"
	ollamarecognition "github.com/kirillkom/invoice-ingest/internal/infrastructure/recognition/ollama"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/storage/s3"
	"github.com/kirillkom/invoice-ingest/internal/observability/metrics"
)

const (
	DispatcherNATS      = "nats"
	DispatcherInProcess = "inprocess"
)

// Role selects which parts of the graph a binary needs.
type Role int

const (
	RoleAPI Role = iota
	RoleWorker
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         *nats.Queue
	Pool          *inproc.Pool
	WorkerMetrics *metrics.WorkerMetrics

	SubmitUC  *usecase.SubmitJobUseCase
	QueryUC   *usecase.QueryUseCase
	SynonymUC *usecase.SynonymUseCase
	ExportUC  *usecase.ExportUseCase
	ChatUC    *usecase.ChatUseCase
	RunUC     *usecase.RunJobUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg))

	jobs := postgres.NewJobRepository(db)
	documents := postgres.NewDocumentRepository(db)
	results := postgres.NewResultRepository(db)
	synonyms, err := app.synonymRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	storage, err := newStorage(ctx, cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaVisionModel, ollama.Options{
		HTTPTimeout:        cfg.RecognitionTimeout,
		ResilienceExecutor: executor,
	})

	dispatcher := strings.ToLower(strings.TrimSpace(cfg.Dispatcher))
	needsRunner := role == RoleWorker || dispatcher == DispatcherInProcess
	if needsRunner {
		extractor, err := app.newExtractor(ctx, ollamaClient, executor)
		if err != nil {
			return nil, fmt.Errorf("init recognition: %w", err)
		}
		app.WorkerMetrics = metrics.NewWorkerMetrics(roleName(role))
		app.RunUC = usecase.NewRunJobUseCase(jobs, documents, results, synonyms, storage, extractor,
			usecase.WithRunLogger(logger),
			usecase.WithRunMetrics(app.WorkerMetrics),
			usecase.WithFinalizePause(cfg.FinalizePause),
		)
	}

	var jobDispatcher ports.JobDispatcher
	switch dispatcher {
	case DispatcherInProcess:
		if role == RoleWorker {
			return nil, fmt.Errorf("worker requires DISPATCHER=%s", DispatcherNATS)
		}
		app.Pool = inproc.NewPool(app.RunUC, logger,
			inproc.WithWorkers(cfg.InprocWorkers),
			inproc.WithQueueSize(cfg.InprocQueueSize),
			inproc.WithJobTimeout(cfg.JobTimeout),
		)
		jobDispatcher = app.Pool
	case DispatcherNATS:
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.onClose(queue.Close)
		jobDispatcher = queue
	default:
		return nil, fmt.Errorf("unknown dispatcher %q", cfg.Dispatcher)
	}

	app.SubmitUC = usecase.NewSubmitJobUseCase(jobs, documents, storage, jobDispatcher, logger)
	app.QueryUC = usecase.NewQueryUseCase(jobs, documents, results)
	app.SynonymUC = usecase.NewSynonymUseCase(synonyms)
	app.ExportUC = usecase.NewExportUseCase(jobs, results, export.NewCSVEncoder(), export.NewXLSXEncoder(logger))
	app.ChatUC = usecase.NewChatUseCase(jobs, results, postgres.NewChatHistoryRepository(db), ollama.NewGenerator(ollamaClient), logger)
	return app, nil
}

// SynonymStore is the synonym repository plus bulk upsert, used by the api, the worker and
// the import command so every writer goes through the same cache invalidation.
type SynonymStore interface {
	ports.SynonymRepository
	Upsert(ctx context.Context, mapping *domain.SynonymMapping) error
}

// NewSynonymStore returns the Postgres synonym repository, fronted by the Redis snapshot cache
// when redisURL is set. The returned func releases the cache connection.
func NewSynonymStore(ctx context.Context, db *sql.DB, redisURL string, logger *slog.Logger) (SynonymStore, func(), error) {
	repo := postgres.NewSynonymRepository(db)
	if strings.TrimSpace(redisURL) == "" {
		return repo, func() {}, nil
	}
	client, err := rediscache.NewClient(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init synonym cache: %w", err)
	}
	return rediscache.NewSynonymCache(repo, client, 0, logger), func() { _ = client.Close() }, nil
}

func (a *App) synonymRepository(ctx context.Context, db *sql.DB) (ports.SynonymRepository, error) {
	store, closeStore, err := NewSynonymStore(ctx, db, a.Config.RedisURL, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose(closeStore)
	return store, nil
}

func (a *App) newExtractor(ctx context.Context, client *ollama.Client, executor *resilience.Executor) (ports.BatchExtractor, error) {
	var recognizer recognition.Recognizer
	switch strings.ToLower(strings.TrimSpace(a.Config.RecognitionProvider)) {
	case "", "ollama":
		recognizer = ollamarecognition.NewRecognizer(client, a.Logger)
	case "gemini":
		g, err := gemini.New(ctx, gemini.Options{
			APIKey:             a.Config.GeminiAPIKey,
			Model:              a.Config.GeminiModel,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = g.Close() })
		recognizer = g
	default:
		return nil, fmt.Errorf("unknown recognition provider %q", a.Config.RecognitionProvider)
	}
	return recognition.NewBatch(recognizer, a.Config.RecognitionConcurrency, a.Logger), nil
}

func newStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3.New(ctx, s3.Options{
			Bucket:             cfg.S3Bucket,
			Region:             cfg.S3Region,
			Endpoint:           cfg.S3Endpoint,
			AccessKey:          cfg.S3AccessKey,
			SecretKey:          cfg.S3SecretKey,
			PathStyle:          cfg.S3PathStyle,
			ResilienceExecutor: executor,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	rc.AttemptTimeout = cfg.RecognitionTimeout
	return rc
}

func roleName(role Role) string {
	if role == RoleWorker {
		return "worker"
	}
	return "api"
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
