package publish

import (
	"context"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// DeploymentRecord is one row of the deployments ledger.
type DeploymentRecord struct {
	SessionID       string
	ResumedFrom     string
	Account         chain.Address
	Title           string
	CollectionID    *uint64
	Step            enums.DeployStep
	Status          enums.DeploymentStatus
	TracksTotal     int
	TracksConfirmed int
	FailureReason   string
}

// DeploymentRecorder upserts ledger rows keyed by session id.
type DeploymentRecorder interface {
	Record(ctx context.Context, rec DeploymentRecord) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, DeploymentRecord) error { return nil }

func (c *Controller) record(ctx context.Context, cp *Checkpoint, status enums.DeploymentStatus, reason string) error {
	rec := DeploymentRecord{
		SessionID:       c.id,
		ResumedFrom:     cp.ResumedFrom,
		Account:         cp.Account,
		Title:           cp.Plan.Collection.Title,
		Step:            cp.NextStep(),
		Status:          status,
		TracksTotal:     len(cp.Plan.Tracks),
		TracksConfirmed: len(cp.TrackIDs),
		FailureReason:   reason,
	}
	if cp.CollectionID != nil {
		id := *cp.CollectionID
		rec.CollectionID = &id
	}
	err := c.deps.Recorder.Record(ctx, rec)
	if err != nil {
		c.logg.Error(c.logCtx(ctx), "failed to record deployment", err)
	}
	return err
}
