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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/documents"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/engine/guard"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/engine/local"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/engine/remote"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analyzer service",
		"port", cfg.Server.Port,
		"engine", cfg.Batcher.EngineName,
		"engine_mode", cfg.Engine.Mode,
		"language", cfg.Batcher.Language,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, reg)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()

	var engine batcher.Engine[proto.Analysis]
	switch cfg.Engine.Mode {
	case "remote":
		rem, client, err := remote.Dial(cfg.Engine.Addr, cfg.Batcher.Language)
		if err != nil {
			slog.Error("failed to connect to analysis engine", "addr", cfg.Engine.Addr, "error", err)
			os.Exit(1)
		}
		defer client.Close()
		infoCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if info, err := rem.Info(infoCtx); err != nil {
			slog.Warn("analysis engine info unavailable", "error", err)
		} else {
			slog.Info("connected to analysis engine", "addr", cfg.Engine.Addr, "name", info.Name, "languages", info.Languages)
		}
		cancel()
		guarded := guard.New[proto.Analysis](rem, guard.OptionsFromConfig(cfg.Batcher.EngineName, cfg.Engine, m))
		checker.Register("engine", guarded.HealthCheck())
		engine = guarded
	default:
		engine = local.New(cfg.Batcher.EngineName)
		checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: "in-process"}
		})
	}

	memStore, err := cache.NewMemory[proto.Analysis](cache.MemoryConfig{
		NumCounters: cfg.Batcher.CacheNumCounters,
		MaxCost:     cfg.Batcher.CacheMaxCost,
	})
	if err != nil {
		slog.Error("failed to create result cache", "error", err)
		os.Exit(1)
	}
	defer memStore.Close()
	var store batcher.Store[proto.Analysis] = memStore

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared result cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			namespace := cfg.Batcher.EngineName + ":" + cfg.Batcher.Language
			store = cache.NewTiered[proto.Analysis](memStore, cache.NewRedis[proto.Analysis](redisClient, namespace, cfg.Redis.CacheTTL))
			checker.Register("redis", health.Optional(health.PingCheck(redisClient.Ping)))
			slog.Info("shared result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	origin := instanceID()
	var progress func(ctx context.Context, status string)
	var invalidationPublisher events.EventPublisher
	var collector *events.Collector
	if cfg.Kafka.Enabled {
		analysisProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalysisEvents)
		defer analysisProducer.Close()
		collector = events.NewCollector(analysisProducer, 500, 5*time.Second)
		collector.Start(ctx)
		progress = collector.Progress(cfg.Batcher.EngineName, cfg.Batcher.Language)
		slog.Info("analysis event collector started", "topic", cfg.Kafka.Topics.AnalysisEvents)

		invalidateProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CacheInvalidate)
		defer invalidateProducer.Close()
		invalidationPublisher = invalidateProducer
	}

	b := batcher.New[proto.Analysis](engine, store, batcher.Options{
		Name:      cfg.Batcher.EngineName,
		Language:  cfg.Batcher.Language,
		BatchSize: cfg.Batcher.BatchSize,
		Rules:     batcher.Rules{MaxLength: cfg.Batcher.MaxItemLength},
		Progress:  progress,
		Metrics:   m,
	})
	invalidator := events.NewInvalidator(origin, invalidationPublisher, b)

	if cfg.Kafka.Enabled {
		// Every instance must see every invalidation, so each one consumes
		// under its own group.
		kcfg := cfg.Kafka
		kcfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-" + origin
		consumer := kafka.NewConsumer(kcfg, cfg.Kafka.Topics.CacheInvalidate, invalidator.Handler())
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("cache invalidation consumer error", "error", err)
			}
		}()
		slog.Info("cache invalidation consumer started", "topic", cfg.Kafka.Topics.CacheInvalidate, "group", kcfg.ConsumerGroup)
	}

	generation := cfg.Batcher.Generation()
	var docs documents.Repository
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := documents.NewStore(db, generation)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare document schema", "error", err)
			os.Exit(1)
		}
		checker.Register("postgres", health.PingCheck(db.Ping))
		docs = pgStore
	} else {
		slog.Info("postgres disabled, documents kept in memory")
		docs = documents.NewMemoryRepository(generation)
	}

	memo, err := batcher.NewMemo(b, cfg.Batcher.MemoScopes, documents.Items)
	if err != nil {
		slog.Error("failed to create session memo", "error", err)
		os.Exit(1)
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer limiter.Stop()
	}

	h := handler.New(b, memo, docs, handler.Options{
		MaxSentences: cfg.Server.MaxSentences,
		Tracing:      cfg.Tracing.Enabled,
		SampleRate:   cfg.Tracing.SampleRate,
		Stats:        memStore,
		Invalidator:  invalidator,
	})
	chain := router.New(h, checker, router.Options{
		Limiter:     limiter,
		Metrics:     m,
		CORSOrigins: cfg.Server.CORSOrigins,
		Timeout:     cfg.Server.RequestTimeout,
	})

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
	}()

	slog.Info("analyzer service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	b.Dispose()
	b.Wait()
	if collector != nil {
		collector.Close()
	}
	slog.Info("analyzer service stopped")
}

// instanceID names this process in cache invalidation broadcasts.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "analyzer"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
