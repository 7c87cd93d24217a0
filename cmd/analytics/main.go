// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and document-load events from Kafka, aggregates them
// in memory (total searches, latency percentiles, cache hit rate, top and
// zero-hit words), exposes GET /api/v1/analytics, and optionally snapshots
// the aggregate to PostgreSQL so totals survive restarts.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	agg := analytics.NewAggregator()
	checker := health.NewChecker(0)

	var snapshotsDone <-chan struct{}
	if cfg.Analytics.PersistSnapshots {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		store := aggregator.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate analytics schema", "error", err)
			os.Exit(1)
		}
		latest, err := store.LatestSnapshot(ctx)
		if err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			agg.Restore(*latest)
			slog.Info("analytics restored from snapshot", "total_searches", latest.TotalSearches)
		}
		snapshotsDone = store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)

		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, agg.Handle)
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.SearchEvents)

	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	analytics.NewHandler(agg).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.HandlerFor(prometheus.DefaultGatherer))

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if snapshotsDone != nil {
		<-snapshotsDone
	}
	slog.Info("analytics service stopped")
}
