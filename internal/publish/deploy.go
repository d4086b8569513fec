package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// stepFailure ties a saga error to the step that produced it.
type stepFailure struct {
	step enums.DeployStep
	err  error
}

func (f *stepFailure) Error() string { return fmt.Sprintf("%s: %v", f.step, f.err) }

func (f *stepFailure) Unwrap() error { return f.err }

var errDeployCancelled = errors.New("deploy cancelled")

// Deploy runs create, add track(s) and finalize in order, each confirmed
// before the next is submitted. It fails fast and never rolls back; the
// checkpoint saved after every confirmation is what Resume continues from.
func (c *Controller) Deploy(ctx context.Context) (Snapshot, error) {
	cp, err := c.startDeploy()
	if err != nil {
		return c.Snapshot(), err
	}
	if err := c.authorize(ctx); err != nil {
		c.abortDeploy()
		return c.Snapshot(), err
	}

	c.logg.Info(c.logg.WithFields(c.logCtx(ctx), map[string]any{
		"tracks":    len(cp.Plan.Tracks),
		"next_step": cp.NextStep().String(),
	}), "deploy started")
	if err := c.record(ctx, cp, enums.DeploymentStatusInProgress, ""); pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		c.abortDeploy()
		return c.Snapshot(), err
	}

	if err := c.runSaga(ctx, cp); err != nil {
		return c.failDeploy(ctx, cp, err)
	}
	if err := c.verify(ctx, cp); err != nil {
		return c.failDeploy(ctx, cp, &stepFailure{step: enums.DeployStepFinalizing, err: err})
	}
	return c.completeDeploy(ctx, cp), nil
}

// errNotPublished marks chain state that disagrees with confirmed receipts.
var errNotPublished = errors.New("published state not found on chain")

// verify re-reads the collection and every confirmed track after finalize.
// A mismatch clears the finalized flag so a resume re-reads the chain.
func (c *Controller) verify(ctx context.Context, cp *Checkpoint) error {
	reader := c.wallet.Reader
	rec, err := reader.ReadCollection(ctx, *cp.CollectionID)
	if err != nil {
		return fmt.Errorf("verify collection %d: %w", *cp.CollectionID, err)
	}
	if !rec.Finalized {
		return c.unverified(ctx, cp, fmt.Errorf("%w: collection %d is not finalized", errNotPublished, rec.ID))
	}
	for i, id := range cp.TrackIDs {
		track, err := reader.ReadTrack(ctx, id)
		if err != nil {
			return fmt.Errorf("verify track %d: %w", id, err)
		}
		planned := cp.Plan.Tracks[i]
		if !track.Active || track.CollectionID != rec.ID || track.AudioCID != planned.AudioCID {
			return c.unverified(ctx, cp, fmt.Errorf("%w: track %d does not match %q", errNotPublished, id, planned.Title))
		}
	}
	c.logg.Info(c.logg.WithField(c.logCtx(ctx), "collection_id", rec.ID), "deploy verified on chain")
	return nil
}

func (c *Controller) unverified(ctx context.Context, cp *Checkpoint, err error) error {
	cp.Finalized = false
	c.saveCheckpoint(ctx, cp)
	return err
}

func (c *Controller) startDeploy() (*Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(enums.PublishStageDeploy); err != nil {
		return nil, err
	}
	if c.deploying {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "deploy already started")
	}
	if c.checkpoint == nil {
		if err := c.readyLocked(); err != nil {
			return nil, err
		}
		c.checkpoint = &Checkpoint{
			SessionID: c.id,
			Account:   c.wallet.Account,
			Plan:      c.draft.plan(),
			UpdatedAt: c.deps.Now().UTC(),
		}
	}
	c.busy = true
	c.deploying = true
	c.cancelRequested = false
	cp := c.checkpoint.clone()
	return &cp, nil
}

// readyLocked checks that every stage before deploy has produced its output.
func (c *Controller) readyLocked() error {
	missing := map[string]string{}
	if c.draft.AudioCID == "" {
		missing["audio_cid"] = "is required"
	}
	if c.draft.CoverCID == "" {
		missing["cover_cid"] = "is required"
	}
	if len(c.draft.plan().Tiers) == 0 {
		missing["tiers"] = "enable at least one tier"
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "draft is not ready to deploy").WithDetails(missing)
	}
	return nil
}

func (c *Controller) abortDeploy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.deploying = false
}

// authorize confirms the acting account may publish before anything is sent.
func (c *Controller) authorize(ctx context.Context) error {
	account, ok := c.wallet.CurrentAccount(ctx)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no wallet account connected")
	}
	role := c.deps.PublisherRole
	if role == "" {
		return nil
	}
	has, err := c.wallet.HasRole(ctx, account, role)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "role check failed")
	}
	if !has {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account lacks the publisher role").
			WithDetails(map[string]string{"role": role, "account": account.String()})
	}
	return nil
}

func (c *Controller) runSaga(ctx context.Context, cp *Checkpoint) error {
	for {
		step := cp.NextStep()
		if step == enums.DeployStepDone {
			return nil
		}
		if c.cancelPending() {
			return &stepFailure{step: step, err: errDeployCancelled}
		}
		c.enterStep(step)

		started := c.deps.Now()
		var err error
		switch step {
		case enums.DeployStepCreatingCollection:
			err = c.createCollection(ctx, cp)
		case enums.DeployStepAddingTracks:
			err = c.addTrack(ctx, cp, len(cp.TrackIDs))
		case enums.DeployStepFinalizing:
			err = c.finalize(ctx, cp)
		}
		if err != nil {
			return &stepFailure{step: step, err: err}
		}
		c.deps.Metrics.ObserveDeployStep(step.String(), c.deps.Now().Sub(started))
	}
}

func (c *Controller) createCollection(ctx context.Context, cp *Checkpoint) error {
	receipt, err := c.submit(ctx, cp, chain.CreateCollectionCall(cp.Plan.Collection), 0, progressCreateSubmitted)
	if err != nil {
		return err
	}
	id, err := chain.CollectionIDFromReceipt(receipt)
	if err != nil {
		return &chain.TxError{Method: chain.MethodCreateCollection, Hash: receipt.TxHash, Reason: "receipt carries no collection id", Err: err}
	}
	cp.CollectionID = &id
	c.confirmed(ctx, cp, progressCreateConfirmed)
	return nil
}

func (c *Controller) addTrack(ctx context.Context, cp *Checkpoint, index int) error {
	args := cp.Plan.addTrackArgs(*cp.CollectionID, index)
	receipt, err := c.submit(ctx, cp, chain.AddTrackCall(args), index, 0)
	if err != nil {
		return err
	}
	trackID, err := chain.TrackIDFromReceipt(receipt)
	if err != nil {
		return &chain.TxError{Method: chain.MethodAddTrack, Hash: receipt.TxHash, Reason: "receipt carries no track id", Err: err}
	}
	cp.TrackIDs = append(cp.TrackIDs, trackID)
	c.confirmed(ctx, cp, trackProgress(len(cp.TrackIDs), len(cp.Plan.Tracks)))
	return nil
}

func (c *Controller) finalize(ctx context.Context, cp *Checkpoint) error {
	if _, err := c.submit(ctx, cp, chain.FinalizeCollectionCall(*cp.CollectionID), 0, progressFinalizeSent); err != nil {
		return err
	}
	cp.Finalized = true
	c.confirmed(ctx, cp, progressDone)
	return nil
}

// submit sends call and waits for its receipt. The hash is checkpointed as
// soon as it is known; it stays there only while the outcome is unknown.
func (c *Controller) submit(ctx context.Context, cp *Checkpoint, call chain.Call, trackIndex, submittedProgress int) (chain.Receipt, error) {
	logCtx := c.logg.WithField(c.logCtx(ctx), "method", call.Method)
	receipt, err := chain.SubmitAndAwait(ctx, c.wallet.Writer, call, func(hash chain.TxHash) {
		cp.Pending = &PendingTx{Method: call.Method, Hash: hash, TrackIndex: trackIndex}
		c.saveCheckpoint(ctx, cp)
		c.logg.Info(c.logg.WithField(logCtx, "tx_hash", string(hash)), "transaction submitted")
		if submittedProgress > 0 {
			c.setProgress(submittedProgress)
		}
	})
	if err != nil {
		var txErr *chain.TxError
		if !errors.As(err, &txErr) || !txErr.Unconfirmed {
			cp.Pending = nil
			c.saveCheckpoint(ctx, cp)
		}
		return receipt, err
	}
	cp.Pending = nil
	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"tx_hash": string(receipt.TxHash),
		"block":   receipt.BlockNumber,
	}), "transaction confirmed")
	return receipt, nil
}

func (c *Controller) confirmed(ctx context.Context, cp *Checkpoint, progress int) {
	c.saveCheckpoint(ctx, cp)
	c.mu.Lock()
	if cp.CollectionID != nil {
		id := *cp.CollectionID
		c.draft.CollectionID = &id
	}
	if progress > c.progress {
		c.progress = progress
	}
	c.emitLocked()
	c.mu.Unlock()
	c.record(ctx, cp, enums.DeploymentStatusInProgress, "")
}

func (c *Controller) saveCheckpoint(ctx context.Context, cp *Checkpoint) {
	cp.UpdatedAt = c.deps.Now().UTC()
	c.mu.Lock()
	saved := cp.clone()
	c.checkpoint = &saved
	c.mu.Unlock()
	if err := c.deps.Checkpoints.Save(ctx, saved); err != nil {
		c.logg.Error(c.logCtx(ctx), "failed to save deploy checkpoint", err)
	}
}

func (c *Controller) enterStep(step enums.DeployStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	c.emitLocked()
}

func (c *Controller) setProgress(progress int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if progress > c.progress {
		c.progress = progress
		c.emitLocked()
	}
}

func (c *Controller) cancelPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelRequested
}

func (c *Controller) failDeploy(ctx context.Context, cp *Checkpoint, err error) (Snapshot, error) {
	step := enums.DeployStepNone
	var sf *stepFailure
	if errors.As(err, &sf) {
		step = sf.step
	}

	serr := StageError{
		Stage:      enums.PublishStageDeploy,
		DeployStep: step,
		Code:       pkgerrors.CodeChain,
		Reason:     err.Error(),
		NextAction: ActionRetryTransaction,
		Retryable:  true,
	}
	if cp.CollectionID != nil {
		id := *cp.CollectionID
		serr.CollectionID = &id
		serr.Code = pkgerrors.CodePartialDeployment
		serr.NextAction = ActionResume
	}
	var txErr *chain.TxError
	if errors.As(err, &txErr) {
		serr.TxHash = txErr.Hash
		serr.Reason = txErr.Error()
	}
	if errors.Is(err, errDeployCancelled) {
		serr.Code = pkgerrors.CodeCancelled
		serr.Reason = fmt.Sprintf("deploy cancelled before %s", step)
		serr.Retryable = cp.CollectionID != nil
		if cp.CollectionID == nil {
			serr.NextAction = ActionStartOver
		}
	}

	c.mu.Lock()
	c.busy = false
	c.deploying = false
	c.failLocked(serr)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	fields := map[string]any{
		"deploy_step":      step.String(),
		"tracks_confirmed": len(cp.TrackIDs),
	}
	if serr.CollectionID != nil {
		fields["collection_id"] = *serr.CollectionID
	}
	logCtx := c.logg.WithFields(c.logCtx(ctx), fields)
	if serr.CollectionID != nil {
		c.logg.Error(logCtx, "partial deployment left collection unfinalized", err)
	} else {
		c.logg.Error(logCtx, "deploy failed", err)
	}
	c.record(ctx, cp, enums.DeploymentStatusFailed, serr.Reason)

	return snap, pkgerrors.Wrap(serr.Code, err, "deploy failed at "+step.String()).WithDetails(serr)
}

func (c *Controller) completeDeploy(ctx context.Context, cp *Checkpoint) Snapshot {
	c.mu.Lock()
	c.busy = false
	c.deploying = false
	c.draft.release()
	c.stage = enums.PublishStageComplete
	c.step = enums.DeployStepDone
	c.progress = progressDone
	c.deps.Metrics.IncTransition(enums.PublishStageComplete.String())
	c.deps.Metrics.IncOutcome("complete")
	c.emitLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.deps.Checkpoints.Delete(ctx, c.id); err != nil {
		c.logg.Warn(c.logg.WithField(c.logCtx(ctx), "error", err.Error()), "failed to delete deploy checkpoint")
	}
	c.logg.Info(c.logg.WithFields(c.logCtx(ctx), map[string]any{
		"collection_id": *cp.CollectionID,
		"track_ids":     cp.TrackIDs,
	}), "collection published")
	c.record(ctx, cp, enums.DeploymentStatusComplete, "")
	return snap
}
