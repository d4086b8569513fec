package catalog

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

// Service answers catalog queries from a cached snapshot, rebuilding it
// once it is older than the freshness window.
type Service interface {
	GetCatalog(ctx context.Context, filter Filter) ([]Edition, error)
	ListCatalog(ctx context.Context, filter Filter, params pagination.Params) (*ListResult, error)
	Refresh(ctx context.Context) (Snapshot, error)
}

// ListResult is one page of filtered editions.
type ListResult struct {
	Editions   []Edition `json:"editions"`
	Total      int       `json:"total"`
	NextCursor string    `json:"next_cursor,omitempty"`
	TakenAt    time.Time `json:"taken_at"`
}

type ServiceParams struct {
	Snapshotter Snapshotter
	Cache       SnapshotCache
	Freshness   time.Duration
	Metrics     *metrics.CatalogMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	snapshotter Snapshotter
	cache       SnapshotCache
	freshness   time.Duration
	metrics     *metrics.CatalogMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Snapshotter == nil {
		return nil, fmt.Errorf("snapshotter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cache := params.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		snapshotter: params.Snapshotter,
		cache:       cache,
		freshness:   params.Freshness,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) GetCatalog(ctx context.Context, filter Filter) ([]Edition, error) {
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(snap.Editions), nil
}

func (s *service) ListCatalog(ctx context.Context, filter Filter, params pagination.Params) (*ListResult, error) {
	page, err := pagination.Resolve(params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	snap, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	editions := filter.Apply(snap.Editions)
	start, end, next := pagination.Window(page, len(editions))
	return &ListResult{
		Editions:   editions[start:end],
		Total:      len(editions),
		NextCursor: next,
		TakenAt:    snap.TakenAt,
	}, nil
}

// Refresh materializes a new snapshot and stores it. A failed build leaves
// the cached snapshot untouched.
func (s *service) Refresh(ctx context.Context) (Snapshot, error) {
	snap, err := s.snapshotter.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, pkgerrors.Wrap(pkgerrors.CodeChain, err, "catalog materialization failed")
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.logg.Error(ctx, "failed to cache catalog snapshot", err)
	}
	return snap, nil
}

func (s *service) current(ctx context.Context) (Snapshot, error) {
	cached, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalog cache read failed")
		ok = false
	}
	if ok && s.fresh(cached) {
		s.metrics.IncCache(true)
		return cached, nil
	}
	s.metrics.IncCache(false)

	snap, err := s.Refresh(ctx)
	if err == nil {
		return snap, nil
	}
	if ok {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"error":    err.Error(),
			"taken_at": cached.TakenAt,
		}), "serving stale catalog snapshot")
		return cached, nil
	}
	return Snapshot{}, err
}

func (s *service) fresh(snap Snapshot) bool {
	if s.freshness <= 0 {
		return false
	}
	return s.now().Sub(snap.TakenAt) < s.freshness
}
