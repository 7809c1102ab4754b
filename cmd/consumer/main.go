package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"example.com/activitylog/internal/config"
	"example.com/activitylog/internal/consumer"
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
	logger = logger.With("service", "activity-consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}

	if cfg.Postgres.Migrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Error("migrate postgres", "error", err)
			pool.Close()
			os.Exit(1)
		}
	}

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, pool, logger) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		logger.Info("consumer shutdown requested", "grace", cfg.ShutdownGrace)
		select {
		case runErr = <-done:
		case <-time.After(cfg.ShutdownGrace):
			// In-flight work may still hold pool connections; exit without waiting for them.
			logger.Error("shutdown grace elapsed, forcing exit")
			os.Exit(1)
		}
	}

	pool.Close()
	if runErr != nil {
		logger.Error("consumer stopped", "error", runErr)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}

// run blocks until ctx is cancelled or a processor fails on the event log.
func run(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) error {
	repo := postgres.NewRepository(pool)
	handler := consumer.NewPersistenceHandler(domain.NewRecorder(repo, domain.WithRecorderLogger(logger)))
	probe := eventlog.NewProbe(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic)

	opts := []consumer.Option{consumer.WithConnectCheck(probe.Check)}
	if cfg.Consumer.DeadLetters {
		opts = append(opts, consumer.WithDeadLetters(postgres.NewDeadLetterRepository(pool)))
	}

	processors := make([]*consumer.Processor, 0, cfg.Consumer.Workers)
	for i := 0; i < cfg.Consumer.Workers; i++ {
		reader, err := eventlog.NewReader(eventlog.ReaderConfig{
			Brokers:     cfg.Kafka.Brokers,
			ClientID:    cfg.Kafka.ClientID,
			Topic:       cfg.Kafka.Topic,
			GroupID:     cfg.Kafka.GroupID,
			StartOffset: cfg.Kafka.StartOffset,
		})
		if err != nil {
			return err
		}
		workerOpts := append([]consumer.Option{consumer.WithLogger(logger.With("worker", i))}, opts...)
		processors = append(processors, consumer.NewProcessor(reader, handler, workerOpts...))
	}

	checker := health.NewChecker(func(ctx context.Context) bool {
		for _, p := range processors {
			if !p.Healthy(ctx) {
				return false
			}
		}
		return true
	}, health.PingCheck(repo))

	metricsRouter := chi.NewRouter()
	checker.RegisterRoutes(metricsRouter)
	metricsRouter.Handle("/metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTP.MetricsAddress}, metricsRouter)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range processors {
		g.Go(func() error {
			logger.Info("consumer started", "worker", i, "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
			err := p.Run(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("worker %d: %w", i, err)
		})
	}
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
