package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

type staleDeploymentSweeper interface {
	SweepStale(ctx context.Context) (int64, error)
}

// NewDeploymentSweepJob fails ledger rows whose deploy stopped reporting.
func NewDeploymentSweepJob(logg *logger.Logger, sweeper staleDeploymentSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("deployments service required")
	}
	return &deploymentSweepJob{logg: logg, sweeper: sweeper}, nil
}

type deploymentSweepJob struct {
	logg    *logger.Logger
	sweeper staleDeploymentSweeper
}

func (j *deploymentSweepJob) Name() string { return "deployment_sweep" }

func (j *deploymentSweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.SweepStale(ctx)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_failed", n), "deployment sweep complete")
	return nil
}

type sessionSweeper interface {
	Sweep(ctx context.Context) int
}

// NewSessionSweepJob drops idle publish sessions held by this process.
func NewSessionSweepJob(logg *logger.Logger, sessions sessionSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session registry required")
	}
	return &sessionSweepJob{logg: logg, sessions: sessions}, nil
}

type sessionSweepJob struct {
	logg     *logger.Logger
	sessions sessionSweeper
}

func (j *sessionSweepJob) Name() string { return "publish_session_sweep" }

func (j *sessionSweepJob) Run(ctx context.Context) error {
	if n := j.sessions.Sweep(ctx); n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "sessions_dropped", n), "idle publish sessions dropped")
	}
	return nil
}
