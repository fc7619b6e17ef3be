package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/air-quality-forecast/internal/adapter/csvsource"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/air-quality-forecast/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/modelstore"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/postgres"
	"github.com/couchcryptid/air-quality-forecast/internal/config"
	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
	"github.com/couchcryptid/air-quality-forecast/internal/pipeline"
	"github.com/couchcryptid/air-quality-forecast/internal/scheduler"
	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

// allReady is ready once every member is.
type allReady []sharedobs.ReadinessChecker

func (a allReady) CheckReadiness(ctx context.Context) error {
	for _, c := range a {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Input series: Postgres when DATABASE_URL is set, otherwise the CSV snapshot.
	var (
		provider service.SeriesProvider
		reloader scheduler.Reloader
		ready    allReady
		opts     []service.Option
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo := postgres.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		provider = repo
		ready = append(ready, repo)
		opts = append(opts, service.WithForecastLogger(repo))
		logger.Info("serving series from postgres")
	} else {
		src, err := csvsource.Open(cfg.DataPath, logger)
		if err != nil {
			logger.Error("failed to load dataset", "error", err, "path", cfg.DataPath)
			os.Exit(1)
		}
		provider = src
		reloader = src
		logger.Info("serving series from csv", "path", cfg.DataPath)
	}

	// Model store: artifacts on disk behind a circuit breaker and an LRU.
	files := modelstore.NewFileStore(cfg.ModelDir, metrics)
	breaker := modelstore.NewBreakerStore(files, uint32(cfg.ModelBreakerFailures), cfg.ModelBreakerTimeout, logger, metrics)
	models, err := modelstore.NewCachedStore(breaker, cfg.ModelCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create model cache", "error", err)
		os.Exit(1)
	}
	if keys, err := files.Keys(); err == nil {
		logger.Info("model store ready", "dir", cfg.ModelDir, "models", len(keys))
	}

	svc := service.New(provider, domain.NewForecaster(models, logger), logger, metrics, opts...)

	sched := scheduler.New(cfg.RefreshInterval, reloader, models, logger, metrics)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p := pipeline.New(reader, pipeline.NewHandler(svc, logger), writer, logger, metrics, cfg.BatchSize)
		ready = append(ready, p)

		// Start forecast-request pipeline.
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka pipeline disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, ready, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
