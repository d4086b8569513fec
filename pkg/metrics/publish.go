package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PublishMetrics tracks publish sessions, uploads and deploy steps.
type PublishMetrics struct {
	transitions *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	uploadBytes *prometheus.CounterVec
	deploySteps *prometheus.HistogramVec
	outcomes    *prometheus.CounterVec
	active      prometheus.Gauge
}

// NewPublishMetrics registers the publish pipeline metrics on reg.
func NewPublishMetrics(reg prometheus.Registerer) *PublishMetrics {
	if reg == nil {
		return &PublishMetrics{}
	}
	m := &PublishMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_publish_stage_transitions_total",
			Help: "Publish session stage transitions by target stage.",
		}, []string{"stage"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_publish_uploads_total",
			Help: "Content uploads by kind and result.",
		}, []string{"kind", "result"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_publish_upload_bytes_total",
			Help: "Bytes stored to content storage by kind.",
		}, []string{"kind"}),
		deploySteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundmint_publish_deploy_step_seconds",
			Help:    "Duration of each confirmed deploy step.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"step"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundmint_publish_outcomes_total",
			Help: "Terminal publish outcomes.",
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soundmint_publish_active_sessions",
			Help: "Publish sessions held in memory.",
		}),
	}
	reg.MustRegister(m.transitions, m.uploads, m.uploadBytes, m.deploySteps, m.outcomes, m.active)
	return m
}

func (m *PublishMetrics) IncTransition(stage string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(stage)).Inc()
}

// ObserveUpload records one upload attempt; size is only counted on success.
func (m *PublishMetrics) ObserveUpload(kind string, size int64, err error) {
	if m == nil || m.uploads == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.uploads.WithLabelValues(normalizeLabel(kind), result).Inc()
	if err == nil && size > 0 {
		m.uploadBytes.WithLabelValues(normalizeLabel(kind)).Add(float64(size))
	}
}

func (m *PublishMetrics) ObserveDeployStep(step string, d time.Duration) {
	if m == nil || m.deploySteps == nil {
		return
	}
	m.deploySteps.WithLabelValues(normalizeLabel(step)).Observe(d.Seconds())
}

func (m *PublishMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PublishMetrics) SetActiveSessions(n int) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Set(float64(n))
}
