package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/soundmint-backend/api/controllers"
	"github.com/angelmondragon/soundmint-backend/api/routes"
	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/internal/chain/driver"
	"github.com/angelmondragon/soundmint-backend/internal/cron"
	"github.com/angelmondragon/soundmint-backend/internal/deployments"
	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/db"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
	"github.com/angelmondragon/soundmint-backend/pkg/migrate"
	"github.com/angelmondragon/soundmint-backend/pkg/redis"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
	"github.com/angelmondragon/soundmint-backend/pkg/storage/gcs"
	"github.com/angelmondragon/soundmint-backend/pkg/storage/minio"
)

const shutdownTimeout = 20 * time.Second

type contentStore interface {
	storage.Uploader
	storage.Pinger
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	backend, err := driver.Open(cfg.Chain, logg)
	if err != nil {
		logg.Error(ctx, "failed to open chain backend", err)
		os.Exit(1)
	}

	content, err := openContentStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap content storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	publishMetrics := metrics.NewPublishMetrics(registry)
	catalogMetrics := metrics.NewCatalogMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	snapshotCache, err := catalog.NewRedisCache(redisClient, cfg.Catalog.CacheTTL)
	if err != nil {
		logg.Error(ctx, "failed to create catalog cache", err)
		os.Exit(1)
	}
	catalogService, err := catalog.NewFromConfig(catalog.SetupParams{
		Catalog: cfg.Catalog,
		Chain:   cfg.Chain,
		Reader:  backend,
		Cache:   snapshotCache,
		Metrics: catalogMetrics,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}

	deploymentsRepo := deployments.NewRepository(dbClient.DB())
	deploymentsService, err := deployments.NewService(deployments.ServiceParams{
		Repo:       deploymentsRepo,
		Logger:     logg,
		StaleAfter: cfg.Publish.StaleAfter,
	})
	if err != nil {
		logg.Error(ctx, "failed to create deployments service", err)
		os.Exit(1)
	}

	checkpoints, err := publish.NewRedisCheckpoints(redisClient, cfg.Publish.CheckpointTTL)
	if err != nil {
		logg.Error(ctx, "failed to create checkpoint store", err)
		os.Exit(1)
	}
	sessions, err := publish.NewRegistry(backend, publish.Dependencies{
		Uploader: content,
		AudioPolicy: storage.Policy{
			Label:        "audio",
			MaxBytes:     int64(cfg.Storage.MaxAudioMB) << 20,
			AllowedTypes: storage.AudioTypes,
		},
		CoverPolicy: storage.Policy{
			Label:        "cover",
			MaxBytes:     int64(cfg.Storage.MaxCoverMB) << 20,
			AllowedTypes: storage.ImageTypes,
		},
		Checkpoints:   checkpoints,
		Recorder:      deploymentsRepo,
		Metrics:       publishMetrics,
		Logger:        logg,
		PublisherRole: cfg.Chain.PublisherRole,
		MaxTracks:     cfg.Publish.MaxTracks,
	}, cfg.Publish.SessionTTL)
	if err != nil {
		logg.Error(ctx, "failed to create publish registry", err)
		os.Exit(1)
	}

	sweeper, err := newSessionSweeper(logg, sessions, cronMetrics, cfg.Publish.SweepInterval)
	if err != nil {
		logg.Error(ctx, "failed to create session sweeper", err)
		os.Exit(1)
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "session sweeper stopped unexpectedly", err)
		}
	}()

	pingers := map[string]controllers.Pinger{
		"db":      dbClient,
		"redis":   redisClient,
		"storage": content,
	}
	if p, ok := backend.(controllers.Pinger); ok {
		pingers["chain"] = p
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"chain":    cfg.Chain.Driver,
		"contract": backend.Contract().String(),
		"storage":  cfg.Storage.Driver,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:      cfg,
			Logger:      logg,
			Pingers:     pingers,
			Store:       redisClient,
			Gatherer:    registry,
			Catalog:     catalogService,
			Sessions:    sessions,
			Wallets:     backend,
			Deployments: deploymentsService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}

func openContentStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (contentStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case config.StorageDriverGCS:
		return gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	default:
		return minio.New(ctx, cfg.Minio, logg)
	}
}

// newSessionSweeper expires idle publish sessions held by this process.
func newSessionSweeper(logg *logger.Logger, sessions *publish.Registry, m *metrics.CronJobMetrics, interval time.Duration) (*cron.Service, error) {
	job, err := cron.NewSessionSweepJob(logg, sessions)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     &cron.ProcessLock{},
		Metrics:  m,
		Interval: interval,
	})
}
