package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/internal/chain/driver"
	"github.com/angelmondragon/soundmint-backend/internal/cron"
	"github.com/angelmondragon/soundmint-backend/internal/deployments"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/db"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
	"github.com/angelmondragon/soundmint-backend/pkg/migrate"
	"github.com/angelmondragon/soundmint-backend/pkg/redis"
)

const serviceName = "catalog-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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
		Metrics: metrics.NewCatalogMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create catalog service", err)
		os.Exit(1)
	}

	deploymentsService, err := deployments.NewService(deployments.ServiceParams{
		Repo:       deployments.NewRepository(dbClient.DB()),
		Logger:     logg,
		StaleAfter: cfg.Publish.StaleAfter,
	})
	if err != nil {
		logg.Error(ctx, "failed to create deployments service", err)
		os.Exit(1)
	}

	refreshJob, err := cron.NewCatalogRefreshJob(cron.CatalogRefreshJobParams{Logger: logg, Catalog: catalogService})
	if err != nil {
		logg.Error(ctx, "failed to create catalog refresh job", err)
		os.Exit(1)
	}
	sweepJob, err := cron.NewDeploymentSweepJob(logg, deploymentsService)
	if err != nil {
		logg.Error(ctx, "failed to create deployment sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(refreshJob, cron.Every(sweepJob, cfg.Publish.SweepInterval)),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Catalog.PollInterval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":   cfg.App.Env,
		"chain": cfg.Chain.Driver,
	})
	logg.Info(ctx, "starting catalog worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "catalog worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "catalog worker shutting down gracefully")
}
