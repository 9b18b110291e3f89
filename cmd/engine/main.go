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

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/engine/local"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
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
	slog.Info("starting analysis engine", "listen_addr", cfg.Engine.ListenAddr, "name", cfg.Batcher.EngineName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer := local.New(cfg.Batcher.EngineName)
	srv := grpc.NewServer()
	analyzer.Register(srv)
	if err := srv.Listen(cfg.Engine.ListenAddr); err != nil {
		slog.Error("failed to bind rpc listener", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("rpc", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d methods on %s", srv.MethodCount(), srv.Addr()),
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler(prometheus.DefaultGatherer))
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		srv.Stop()
	}()

	if err := srv.Serve(cfg.Engine.ListenAddr); err != nil {
		slog.Error("rpc server error", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis engine stopped")
}
