package catalog

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/config"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
)

type SetupParams struct {
	Catalog config.CatalogConfig
	Chain   config.ChainConfig
	Reader  chain.Reader
	Cache   SnapshotCache
	Metrics *metrics.CatalogMetrics
	Logger  *logger.Logger
}

// NewFromConfig wires the probe lister, materializer and service around one
// read limiter so discovery and tier reads share the chain read budget.
func NewFromConfig(p SetupParams) (Service, error) {
	usdRate, err := p.Catalog.USDRateDecimal()
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if p.Chain.ReadRPS > 0 {
		burst := p.Chain.ReadBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(p.Chain.ReadRPS), burst)
	}

	lister, err := NewProbeLister(p.Reader, limiter, p.Chain.ReadConcurrency, p.Metrics)
	if err != nil {
		return nil, fmt.Errorf("catalog lister: %w", err)
	}
	materializer, err := NewMaterializer(MaterializerParams{
		Lister:      lister,
		Reader:      p.Reader,
		Limiter:     limiter,
		Concurrency: p.Chain.ReadConcurrency,
		MaxProbe:    p.Catalog.MaxProbe,
		DisplayCap:  p.Catalog.DisplayCap,
		USDRate:     usdRate,
		Metrics:     p.Metrics,
		Logger:      p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog materializer: %w", err)
	}
	return NewService(ServiceParams{
		Snapshotter: materializer,
		Cache:       p.Cache,
		Freshness:   p.Catalog.PollInterval,
		Metrics:     p.Metrics,
		Logger:      p.Logger,
	})
}
