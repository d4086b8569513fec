package catalog

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
)

// TrackLister discovers the tracks a snapshot is built from.
type TrackLister interface {
	ListActiveTracks(ctx context.Context, maxProbe int) ([]chain.TrackRecord, error)
}

// ProbeLister finds tracks by reading ids 0..maxProbe-1 one by one. The
// contract has no enumeration call, so this is only complete while track
// ids stay dense; a sparse id space would silently hide tracks past a gap
// wider than the probe.
type ProbeLister struct {
	reader      chain.Reader
	limiter     *rate.Limiter
	concurrency int
	metrics     *metrics.CatalogMetrics
}

// NewProbeLister builds a lister. A nil limiter means reads are unthrottled.
func NewProbeLister(reader chain.Reader, limiter *rate.Limiter, concurrency int, m *metrics.CatalogMetrics) (*ProbeLister, error) {
	if reader == nil {
		return nil, fmt.Errorf("chain reader required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ProbeLister{reader: reader, limiter: limiter, concurrency: concurrency, metrics: m}, nil
}

// ListActiveTracks returns listed tracks ordered by id. Unassigned ids are
// skipped; any other read failure aborts the probe.
func (p *ProbeLister) ListActiveTracks(ctx context.Context, maxProbe int) ([]chain.TrackRecord, error) {
	if maxProbe <= 0 {
		return nil, nil
	}
	slots := make([]*chain.TrackRecord, maxProbe)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := 0; i < maxProbe; i++ {
		id := uint64(i)
		g.Go(func() error {
			if err := wait(gctx, p.limiter); err != nil {
				return err
			}
			track, err := p.reader.ReadTrack(gctx, id)
			switch {
			case errors.Is(err, chain.ErrTrackNotFound):
				p.metrics.IncChainRead("track", "not_found")
				return nil
			case err != nil:
				p.metrics.IncChainRead("track", "error")
				return fmt.Errorf("read track %d: %w", id, err)
			}
			p.metrics.IncChainRead("track", "ok")
			if track.Listed() {
				slots[id] = &track
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]chain.TrackRecord, 0, maxProbe)
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
