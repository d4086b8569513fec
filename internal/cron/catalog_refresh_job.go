package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/internal/catalog"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

type catalogRefresher interface {
	Refresh(ctx context.Context) (catalog.Snapshot, error)
}

type CatalogRefreshJobParams struct {
	Logger  *logger.Logger
	Catalog catalogRefresher
}

// NewCatalogRefreshJob rebuilds the shared catalog snapshot so API replicas
// serve from cache instead of probing the chain per request.
func NewCatalogRefreshJob(params CatalogRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	return &catalogRefreshJob{logg: params.Logger, catalog: params.Catalog}, nil
}

type catalogRefreshJob struct {
	logg    *logger.Logger
	catalog catalogRefresher
}

func (j *catalogRefreshJob) Name() string { return "catalog_refresh" }

func (j *catalogRefreshJob) Run(ctx context.Context) error {
	snap, err := j.catalog.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("catalog refresh: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"tracks":   snap.Tracks,
		"editions": len(snap.Editions),
		"taken_at": snap.TakenAt,
	}), "catalog snapshot stored")
	return nil
}
