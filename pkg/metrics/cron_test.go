package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsLabelsEachJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveDuration("catalog_refresh", 250*time.Millisecond)
	m.IncSuccess("catalog_refresh")
	m.IncSuccess("catalog_refresh")
	m.IncFailure("deployment_sweep")
	m.ObserveDuration("publish_session_sweep", time.Second)
	m.IncSuccess("publish_session_sweep")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	assert.EqualValues(t, 2, sample(t, mfs, "soundmint_job_success_total", "job", "catalog_refresh").GetCounter().GetValue())
	assert.EqualValues(t, 1, sample(t, mfs, "soundmint_job_success_total", "job", "publish_session_sweep").GetCounter().GetValue())
	assert.EqualValues(t, 1, sample(t, mfs, "soundmint_job_failure_total", "job", "deployment_sweep").GetCounter().GetValue())
	assert.Nil(t, find(mfs, "soundmint_job_failure_total", "job", "catalog_refresh"))

	refresh := sample(t, mfs, "soundmint_job_duration_seconds", "job", "catalog_refresh").GetHistogram()
	assert.EqualValues(t, 1, refresh.GetSampleCount())
	assert.InDelta(t, 0.25, refresh.GetSampleSum(), 1e-9)
}

func TestCronJobMetricsUnnamedJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.IncFailure("")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.EqualValues(t, 1, sample(t, mfs, "soundmint_job_failure_total", "job", "unknown").GetCounter().GetValue())
}

func TestCronJobMetricsWithoutRegisterer(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveDuration("catalog_refresh", time.Second)
	m.IncSuccess("catalog_refresh")
	m.IncFailure("catalog_refresh")

	var unset *CronJobMetrics
	unset.IncSuccess("deployment_sweep")
}

// sample returns the series of family name carrying label=value.
func sample(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) *dto.Metric {
	t.Helper()
	m := find(mfs, name, label, value)
	require.NotNil(t, m, "%s{%s=%q}", name, label, value)
	return m
}

func find(mfs []*dto.MetricFamily, name, label, value string) *dto.Metric {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, pair := range m.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return m
				}
			}
		}
	}
	return nil
}
