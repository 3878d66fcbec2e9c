package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookquest-ai/bookquest/internal/bookstore"
	"github.com/bookquest-ai/bookquest/internal/embedding"
	ingesthandler "github.com/bookquest-ai/bookquest/internal/ingest/handler"
	"github.com/bookquest-ai/bookquest/internal/ingest/publisher"
	"github.com/bookquest-ai/bookquest/internal/ingest/worker"
	"github.com/bookquest-ai/bookquest/internal/lexical"
	"github.com/bookquest-ai/bookquest/internal/retrieval"
	"github.com/bookquest-ai/bookquest/internal/retrieval/cache"
	retrievalhandler "github.com/bookquest-ai/bookquest/internal/retrieval/handler"
	"github.com/bookquest-ai/bookquest/internal/semantic"
	"github.com/bookquest-ai/bookquest/pkg/config"
	"github.com/bookquest-ai/bookquest/pkg/health"
	"github.com/bookquest-ai/bookquest/pkg/kafka"
	"github.com/bookquest-ai/bookquest/pkg/logger"
	"github.com/bookquest-ai/bookquest/pkg/metrics"
	"github.com/bookquest-ai/bookquest/pkg/middleware"
	"github.com/bookquest-ai/bookquest/pkg/postgres"
	pkgredis "github.com/bookquest-ai/bookquest/pkg/redis"
	"github.com/bookquest-ai/bookquest/pkg/resilience"
)

// rebuildTimeout bounds one full index rebuild triggered by a
// book-ingested event.
const rebuildTimeout = 5 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting bookquest server", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := bookstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	embedder := embedding.NewClient(cfg.Embedding)
	qdrant := semantic.NewQdrantClient(cfg.Qdrant)
	vectors := semantic.NewBreakerSearcher(qdrant, resilience.CircuitBreakerConfig{})

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, retrieve caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis, m)
		slog.Info("retrieve cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	holder := retrieval.NewIndexHolder()
	var invalidator worker.CacheInvalidator
	if queryCache != nil {
		invalidator = queryCache
	}
	indexWorker := worker.New(store, holder, qdrant, embedder, invalidator,
		lexical.Params{K1: cfg.Lexical.K1, B: cfg.Lexical.B},
		cfg.Lexical.IndexPath, rebuildTimeout, m)
	if err := indexWorker.Bootstrap(ctx); err != nil {
		slog.Error("index bootstrap failed", "error", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.BookIngested, indexWorker.HandleMessage)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("book-ingested consumer error", "error", err)
		}
	}()
	slog.Info("index worker consuming", "topic", cfg.Kafka.Topics.BookIngested)

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BookIngested)
	defer producer.Close()
	pub := publisher.New(store, producer)

	svc := retrieval.NewService(holder, vectors, embedder, store, cfg.Fusion, cfg.Search, m)
	retrieveH := retrievalhandler.New(svc, store, store, queryCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	ingestH := ingesthandler.New(pub)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("lexical_index", func(ctx context.Context) health.ComponentHealth {
		ix := holder.Get()
		if ix == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no index snapshot"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", ix.DocCount())}
	})
	checker.Register("vector_backend", func(ctx context.Context) health.ComponentHealth {
		if vectors.State() == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit open"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/retrieve", retrieveH.Retrieve)
	mux.HandleFunc("GET /api/v1/books", retrieveH.Books)
	mux.HandleFunc("POST /api/v1/books", ingestH.Ingest)
	mux.HandleFunc("GET /api/v1/books/{book}/summary", retrieveH.BookSummary)
	mux.HandleFunc("PUT /api/v1/books/{book}/summary", retrieveH.BookSummary)
	mux.HandleFunc("GET /api/v1/books/{book}/chapters/{chapter}/summary", retrieveH.ChapterSummary)
	mux.HandleFunc("PUT /api/v1/books/{book}/chapters/{chapter}/summary", retrieveH.ChapterSummary)
	mux.HandleFunc("POST /api/v1/cache/invalidate", retrieveH.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("bookquest server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("bookquest server stopped")
}
