package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
)

// Snapshot is a point-in-time materialization. Consecutive snapshots are
// independent; minting between them is expected.
type Snapshot struct {
	TakenAt  time.Time `json:"taken_at"`
	Tracks   int       `json:"tracks"`
	Editions []Edition `json:"editions"`
}

// Snapshotter builds snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

type MaterializerParams struct {
	Lister      TrackLister
	Reader      chain.Reader
	Limiter     *rate.Limiter
	Concurrency int
	MaxProbe    int
	DisplayCap  int
	USDRate     decimal.Decimal
	Metrics     *metrics.CatalogMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Materializer reconstructs editions from tier and track state.
type Materializer struct {
	lister      TrackLister
	reader      chain.Reader
	limiter     *rate.Limiter
	concurrency int
	maxProbe    int
	displayCap  int
	usdRate     decimal.Decimal
	metrics     *metrics.CatalogMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewMaterializer(params MaterializerParams) (*Materializer, error) {
	if params.Lister == nil {
		return nil, fmt.Errorf("track lister required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("chain reader required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.MaxProbe <= 0 {
		return nil, fmt.Errorf("max probe must be positive")
	}
	if params.DisplayCap <= 0 {
		return nil, fmt.Errorf("display cap must be positive")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		lister:      params.Lister,
		reader:      params.Reader,
		limiter:     params.Limiter,
		concurrency: concurrency,
		maxProbe:    params.MaxProbe,
		displayCap:  params.DisplayCap,
		usdRate:     params.USDRate,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// Snapshot runs discovery, the tier read and the cross-join.
func (m *Materializer) Snapshot(ctx context.Context) (Snapshot, error) {
	start := m.now()
	snap, err := m.build(ctx)
	m.metrics.ObserveBuild(time.Since(start), err)
	if err != nil {
		return Snapshot{}, err
	}
	m.metrics.SetEditions("all", len(snap.Editions))
	m.metrics.SetEditions("available", len(Filter{Available: true}.Apply(snap.Editions)))
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"tracks":   snap.Tracks,
		"editions": len(snap.Editions),
	}), "catalog materialized")
	return snap, nil
}

func (m *Materializer) build(ctx context.Context) (Snapshot, error) {
	takenAt := m.now().UTC()

	var (
		tracks []chain.TrackRecord
		tiers  []chain.TierConfig
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tracks, err = m.lister.ListActiveTracks(gctx, m.maxProbe)
		if err != nil {
			return fmt.Errorf("list tracks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tiers, err = m.readTiers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	collections, err := m.readCollections(ctx, tracks)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		TakenAt:  takenAt,
		Tracks:   len(tracks),
		Editions: Materialize(tracks, tiers, collections, m.displayCap, m.usdRate),
	}, nil
}

func (m *Materializer) readTiers(ctx context.Context) ([]chain.TierConfig, error) {
	tiers := make([]chain.TierConfig, len(enums.AllTiers))
	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range enums.AllTiers {
		g.Go(func() error {
			if err := wait(gctx, m.limiter); err != nil {
				return err
			}
			cfg, err := m.reader.ReadTierConfig(gctx, tier)
			if err != nil {
				m.metrics.IncChainRead("tier", "error")
				return fmt.Errorf("read tier %s: %w", tier, err)
			}
			m.metrics.IncChainRead("tier", "ok")
			cfg.Tier = tier
			tiers[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiers, nil
}

// readCollections fetches the album records referenced by tracks. A missing
// record leaves the album fields empty rather than failing the snapshot.
func (m *Materializer) readCollections(ctx context.Context, tracks []chain.TrackRecord) (map[uint64]chain.CollectionRecord, error) {
	ids := make([]uint64, 0)
	seen := map[uint64]bool{}
	for _, t := range tracks {
		if !seen[t.CollectionID] {
			seen[t.CollectionID] = true
			ids = append(ids, t.CollectionID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	records := make([]chain.CollectionRecord, len(ids))
	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := wait(gctx, m.limiter); err != nil {
				return err
			}
			rec, err := m.reader.ReadCollection(gctx, id)
			switch {
			case errors.Is(err, chain.ErrCollectionNotFound):
				m.metrics.IncChainRead("collection", "not_found")
				return nil
			case err != nil:
				m.metrics.IncChainRead("collection", "error")
				return fmt.Errorf("read collection %d: %w", id, err)
			}
			m.metrics.IncChainRead("collection", "ok")
			records[i], found[i] = rec, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[uint64]chain.CollectionRecord, len(ids))
	for i, id := range ids {
		if found[i] {
			out[id] = records[i]
		}
	}
	return out, nil
}
