package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks materializer runs and chain reads.
type CatalogMetrics struct {
	builds     *prometheus.HistogramVec
	editions   *prometheus.GaugeVec
	chainReads *prometheus.CounterVec
	cache      *prometheus.CounterVec
}

func NewCatalogMetrics(reg prometheus.Registerer) *CatalogMetrics {
	if reg == nil {
		return &CatalogMetrics{}
	}
	m := &CatalogMetrics{
		builds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundmint_catalog_build_seconds",
			Help:    "Duration of catalog materialization runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		editions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soundmint_catalog_editions",
			Help: "Editions in the latest snapshot by view.",
		}, []string{"view"}),
		chainReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_catalog_chain_reads_total",
			Help: "Contract reads issued while materializing by call and result.",
		}, []string{"call", "result"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_catalog_cache_lookups_total",
			Help: "Snapshot cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.builds, m.editions, m.chainReads, m.cache)
	return m
}

func (m *CatalogMetrics) ObserveBuild(d time.Duration, err error) {
	if m == nil || m.builds == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.builds.WithLabelValues(result).Observe(d.Seconds())
}

func (m *CatalogMetrics) SetEditions(view string, n int) {
	if m == nil || m.editions == nil {
		return
	}
	m.editions.WithLabelValues(normalizeLabel(view)).Set(float64(n))
}

func (m *CatalogMetrics) IncChainRead(call, result string) {
	if m == nil || m.chainReads == nil {
		return
	}
	m.chainReads.WithLabelValues(normalizeLabel(call), normalizeLabel(result)).Inc()
}

// IncCache records a snapshot cache hit or miss.
func (m *CatalogMetrics) IncCache(hit bool) {
	if m == nil || m.cache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}
