package deployments

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

// ServiceParams groups dependencies for the deployments service.
type ServiceParams struct {
	Repo   *Repository
	Logger *logger.Logger
	// StaleAfter is how long an in-progress attempt may go without an update.
	StaleAfter time.Duration
	Now        func() time.Time
}

// Service exposes the deployments ledger to operators and scheduled jobs.
type Service interface {
	ListIncomplete(ctx context.Context, params pagination.Params) (DeploymentsPageDTO, error)
	SweepStale(ctx context.Context) (int64, error)
}

type service struct {
	repo       *Repository
	logg       *logger.Logger
	staleAfter time.Duration
	now        func() time.Time
}

// NewService builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("deployments repo required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.StaleAfter <= 0 {
		return nil, fmt.Errorf("stale window must be positive")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:       params.Repo,
		logg:       params.Logger,
		staleAfter: params.StaleAfter,
		now:        params.Now,
	}, nil
}

func (s *service) ListIncomplete(ctx context.Context, params pagination.Params) (DeploymentsPageDTO, error) {
	page, err := s.repo.ListIncomplete(ctx, params)
	if err != nil {
		if _, cursorErr := pagination.ParseCursor(params.Cursor); cursorErr != nil {
			return DeploymentsPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeValidation, cursorErr, "invalid cursor")
		}
		return DeploymentsPageDTO{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list incomplete deployments")
	}
	return page, nil
}

// SweepStale fails attempts that stopped reporting. Their checkpoints stay
// resumable; only the ledger status changes.
func (s *service) SweepStale(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.repo.MarkStale(ctx, cutoff, "abandoned: no progress reported since "+cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "mark stale deployments")
	}
	if n > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "count", n), "stale deployments marked failed")
	}
	return n, nil
}
