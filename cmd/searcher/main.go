// Command searcher loads one document, indexes it, and serves context
// queries over HTTP and, optionally, the internal RPC protocol.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml] [-document path]
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
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	documentPath := flag.String("document", "", "local document to index (overrides document.path and document.bucket)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *documentPath != "" {
		cfg.Document.Path = *documentPath
		cfg.Document.Bucket = ""
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting context search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	src, err := loader.FromConfig(cfg.Document, cfg.Storage)
	if err != nil {
		slog.Error("invalid document source", "error", err)
		os.Exit(1)
	}
	startupCtx, span := tracing.StartSpan(ctx, "startup")
	var doc *loader.Document
	err = resilience.WithTimeout(startupCtx, cfg.Document.LoadTimeout, "load document", func(ctx context.Context) error {
		var loadErr error
		doc, loadErr = loader.Load(ctx, src, loader.Options{
			Compression: cfg.Document.Compression,
			MaxBytes:    cfg.Document.MaxBytes,
		})
		return loadErr
	})
	if err != nil {
		slog.Error("failed to load document", "source", src.Name(), "error", err)
		os.Exit(1)
	}

	aggregator := analytics.NewAggregator()
	trackers := analytics.Multi{aggregator}
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		trackers = append(trackers, collector)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var indexOpts []index.Option
	if cfg.Document.OwnedResults {
		indexOpts = append(indexOpts, index.WithOwnedResults())
	}
	searchOpts := []searcher.Option{
		searcher.WithMetrics(m),
		searcher.WithTracker(trackers),
		searcher.WithContextLimits(cfg.Search.DefaultContext, cfg.Search.MaxContext),
	}
	var queryCache *cache.QueryCache
	if redisClient != nil {
		searchOpts = append(searchOpts, searcher.WithCacheFor(func(fingerprint string) searcher.Cache {
			breaker := cache.NewBreaker(resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, from, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, fingerprint, breaker, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			return queryCache
		}))
	}

	s := searcher.Build(startupCtx, doc, indexOpts, searchOpts...)
	span.End()
	span.Log(slog.Default())

	checker := health.NewChecker(0)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		st := s.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d occurrences, %d distinct words", st.Occurrences, st.Vocabulary),
		}
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

	if cfg.RPC.Enabled {
		rpcServer := rpc.NewServer()
		searcher.RegisterRPC(rpcServer, s)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
		defer rpcServer.Stop()
	}

	mux := http.NewServeMux()
	handler.New(s, queryCache).Register(mux)
	analytics.NewHandler(aggregator).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			slog.Error("invalid rate limit config", "error", err)
			os.Exit(1)
		}
		limiter := middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, proxies...)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			MaxAge:       3600,
		})(chain)
	}
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
	}()

	slog.Info("context search service listening", "addr", server.Addr, "source", s.Stats().Source)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("context search service stopped")
}
