package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"example.com/activitylog/internal/api"
	"example.com/activitylog/internal/config"
	"example.com/activitylog/internal/domain"
	"example.com/activitylog/internal/eventlog"
	"example.com/activitylog/internal/health"
	"example.com/activitylog/internal/observability"
	"example.com/activitylog/internal/persistence/postgres"
	httptransport "example.com/activitylog/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := observability.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	logger = logger.With("service", "activity-api")

	if err := run(cfg, logger); err != nil {
		logger.Error("activity api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	acks, err := eventlog.ParseAcks(cfg.Kafka.Acks)
	if err != nil {
		return err
	}
	publisher := eventlog.NewPublisher(eventlog.NewWriter(eventlog.Config{
		Brokers:      cfg.Kafka.Brokers,
		ClientID:     cfg.Kafka.ClientID,
		Topic:        cfg.Kafka.Topic,
		Acks:         acks,
		MaxAttempts:  cfg.Kafka.MaxAttempts,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}), eventlog.WithPublisherLogger(logger))
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher close failed", "error", err)
		}
	}()

	repo := postgres.NewRepository(pool)
	handler := api.NewHandler(
		domain.NewIngestor(publisher, domain.WithIngestorLogger(logger)),
		domain.NewQueryService(repo, domain.WithPageLimits(cfg.Pagination.DefaultLimit, cfg.Pagination.MaxLimit)),
		logger,
	)

	var idempotency func(next http.Handler) http.Handler
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		idempotency = api.Idempotency(api.NewRedisIdempotencyStore(client), api.IdempotencyConfig{
			ResponseTTL: cfg.Redis.IdempotencyTTL,
		}, logger)
	}

	probe := eventlog.NewProbe(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic)
	checker := health.NewChecker(probe.Healthy, health.PingCheck(repo))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTP.Address,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, api.NewRouter(handler, checker, idempotency, logger))

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTP.MetricsAddress}, metricsRouter)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("activity api listening", "address", cfg.HTTP.Address)
		return httptransport.Serve(gctx, server, cfg.ShutdownGrace)
	})
	g.Go(func() error {
		logger.Info("metrics listening", "address", cfg.HTTP.MetricsAddress)
		return httptransport.Serve(gctx, metricsSrv, cfg.ShutdownGrace)
	})
	return g.Wait()
}

func newPool(ctx context.Context, cfg config.Postgres) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
