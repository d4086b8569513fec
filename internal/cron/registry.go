package cron

import (
	"context"
	"sync"
	"time"
)

// Job represents a scheduled task that runs inside a cron loop.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry tracks registered cron jobs.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry preloaded with the provided jobs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job to the registry.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Every wraps job so that it runs at most once per period however often the
// loop ticks. Only successful runs reset the period.
func Every(job Job, period time.Duration) Job {
	if job == nil {
		return nil
	}
	return &throttled{Job: job, period: period, now: time.Now}
}

type throttled struct {
	Job
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

func (t *throttled) Run(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	if !t.lastRun.IsZero() && now.Sub(t.lastRun) < t.period {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.Job.Run(ctx); err != nil {
		return err
	}
	t.mu.Lock()
	t.lastRun = now
	t.mu.Unlock()
	return nil
}
