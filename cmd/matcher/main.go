// Command matcher serves job-posting ranking over HTTP and RPC.
//
// It loads and samples the job corpus, wires the four ranking strategies
// to the configured model backends, and exposes POST /match/{strategy}
// alongside corpus admin, analytics and health routes. Kafka, Redis and
// PostgreSQL are optional.
//
// Usage:
//
//	go run ./cmd/matcher [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/matching"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/schedule"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/rpc"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/tracing"
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
	tracing.SetEnabled(cfg.Tracing.Enabled)
	slog.Info("starting matcher", "port", cfg.Server.Port, "rpc_port", cfg.RPC.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Port); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	checker := health.NewChecker(health.WithCacheTTL(time.Second))

	var kv inference.KV
	if cfg.Models.Cache.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis, "jobmatch")
		if err != nil {
			slog.Warn("redis unavailable, model cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			kv = redisClient
			checker.RegisterOptional("redis", health.Ping(redisClient.Ping))
			slog.Info("model cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Models.Cache.TTL)
		}
	}

	models := inference.NewModels(ctx, cfg.Models, m, kv)
	checker.RegisterOptional("models", health.Ping(models.Check))
	registry := ranking.DefaultRegistry(models)

	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to open corpus source", "source", cfg.Corpus.Source, "error", err)
		os.Exit(1)
	}
	defer closeProvider()

	cache := corpus.NewCache(provider, cfg.Corpus.SampleSize, cfg.Corpus.Seed, m)
	if _, err := cache.Get(ctx); err != nil {
		slog.Warn("initial corpus load failed, retrying on first request", "error", err)
	}
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		cur := cache.Current()
		if cur == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "corpus not loaded"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d postings, version %s", cur.Len(), cur.Version)}
	})

	agg := analytics.NewAggregator(cfg.Analytics.MaxSamples)
	var tracker analytics.Tracker = agg
	var notifier matching.UpdateNotifier
	var batch *collector.BatchCollector

	if cfg.Kafka.Enabled {
		host, _ := os.Hostname()
		rankProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RankingEvents, host)
		defer rankProducer.Close()
		batch = collector.NewBatchCollector(rankProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		batch.Start(ctx)
		tracker = batch

		rankConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RankingEvents, analytics.HandleEvent(agg), kafka.ConsumerOptions{})
		go func() {
			if err := agg.Run(ctx, rankConsumer); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		updateProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdates, host)
		defer updateProducer.Close()
		notifier = corpus.NewNotifier(updateProducer, cfg.Kafka.Topics.CorpusUpdates)

		// Every replica must see every corpus update, so each gets its own group.
		updateConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdates, corpus.HandleUpdates(cache, host),
			kafka.ConsumerOptions{Group: cfg.Kafka.ConsumerGroup + "-corpus-" + host})
		go func() {
			if err := updateConsumer.Start(ctx); err != nil {
				slog.Error("corpus update consumer error", "error", err)
			}
		}()
		slog.Info("kafka wiring enabled",
			"ranking_topic", cfg.Kafka.Topics.RankingEvents,
			"corpus_topic", cfg.Kafka.Topics.CorpusUpdates,
		)
	}

	var store *aggregator.Store
	var snapshots analytics.SnapshotLister
	if cfg.Analytics.Persist {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer db.Close()
			store = aggregator.NewStore(db, 1000)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Error("analytics schema setup failed", "error", err)
				os.Exit(1)
			}
			snapshots = store
			checker.RegisterOptional("postgres", health.Ping(db.Ping))
		}
	}

	sched := schedule.New()
	if err := sched.Add("corpus-refresh", cfg.Corpus.RefreshSchedule, 10*time.Minute, func(ctx context.Context) error {
		_, err := cache.Refresh(ctx)
		return err
	}); err != nil {
		slog.Error("invalid corpus refresh schedule", "error", err)
		os.Exit(1)
	}
	if store != nil {
		if err := sched.Add("analytics-snapshot", cfg.Analytics.SnapshotSchedule, 30*time.Second, func(ctx context.Context) error {
			return store.Snapshot(ctx, agg)
		}); err != nil {
			slog.Error("invalid analytics snapshot schedule", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()

	service := matching.NewService(registry, cache, matching.Options{
		TopK:         cfg.Ranking.TopK,
		PreviewChars: cfg.Ranking.PreviewChars,
		Timeout:      cfg.Ranking.Timeout,
		Metrics:      m,
		Tracker:      tracker,
	})

	var rpcServer *rpc.Server
	if cfg.RPC.Port > 0 {
		rpcServer = rpc.NewServer()
		matching.RegisterRPC(rpcServer, service)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		if err := limiter.TrustProxies(cfg.Server.TrustedProxies); err != nil {
			slog.Error("invalid server.trustedProxies", "error", err)
			os.Exit(1)
		}
		go limiter.RunSweeper(ctx)
	}

	handler := matching.NewHandler(service, cache, notifier)
	router := matching.NewRouter(handler, analytics.NewHandler(agg, snapshots), checker, matching.RouterOptions{
		Timeout:     cfg.Server.WriteTimeout,
		CORSOrigins: cfg.Server.CORSOrigins,
		Limiter:     limiter,
		Metrics:     m,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
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
		if rpcServer != nil {
			rpcServer.Stop()
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			slog.Error("scheduler shutdown error", "error", err)
		}
	}()

	slog.Info("matcher listening", "addr", server.Addr, "strategies", registry.Available())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	if batch != nil {
		batch.Close()
	}
	if store != nil {
		finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Snapshot(finalCtx, agg); err != nil {
			slog.Error("final analytics snapshot failed", "error", err)
		}
		cancel()
	}
	slog.Info("matcher stopped")
}

// newProvider opens the configured corpus source. The returned func closes
// any connection it holds.
func newProvider(ctx context.Context, cfg *config.Config) (corpus.Provider, func(), error) {
	switch cfg.Corpus.Source {
	case "sql":
		db, err := corpus.OpenSQL(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return corpus.NewSQLProvider(db), func() { db.Close() }, nil
	default:
		return corpus.NewCSVProvider(cfg.Corpus.CSVPath), func() {}, nil
	}
}
