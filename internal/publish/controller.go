// Package publish drives a publish session from metadata entry to a
// finalized collection: uploads, tier selection and the three-transaction
// deploy saga with its checkpoint and resume path.
package publish

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/metrics"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

// Dependencies are shared by every session a registry creates.
type Dependencies struct {
	Uploader    storage.Uploader
	AudioPolicy storage.Policy
	CoverPolicy storage.Policy
	Checkpoints CheckpointStore
	Recorder    DeploymentRecorder
	Metrics     *metrics.PublishMetrics
	Logger      *logger.Logger
	// PublisherRole is checked on chain before the first transaction. Empty
	// disables the check.
	PublisherRole string
	MaxTracks     int
	// ReconcileProbe bounds the track scan performed when resuming. With no
	// track recorded, a landed track is found only if fewer than this many
	// tracks were added after it.
	ReconcileProbe int
	Now            func() time.Time
}

func (d Dependencies) withDefaults() (Dependencies, error) {
	if d.Uploader == nil {
		return d, fmt.Errorf("uploader required")
	}
	if d.Logger == nil {
		return d, fmt.Errorf("logger required")
	}
	if d.Checkpoints == nil {
		d.Checkpoints = NewMemoryCheckpoints()
	}
	if d.Recorder == nil {
		d.Recorder = nopRecorder{}
	}
	if d.ReconcileProbe <= 0 {
		d.ReconcileProbe = 100
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d, nil
}

// Controller owns one publish draft. Operations are serialized: a call that
// overlaps a running upload or deploy is rejected with a state conflict.
type Controller struct {
	id     string
	wallet chain.Wallet
	deps   Dependencies
	logg   *logger.Logger

	mu              sync.Mutex
	stage           enums.PublishStage
	step            enums.DeployStep
	progress        int
	draft           Draft
	failure         *StageError
	busy            bool
	deploying       bool
	cancelRequested bool
	cancelOp        context.CancelFunc
	attempt         uint64
	checkpoint      *Checkpoint
	updatedAt       time.Time

	hub hub
}

// NewController starts a session in the metadata stage.
func NewController(id string, wallet chain.Wallet, deps Dependencies) (*Controller, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("session id required")
	}
	if err := wallet.Validate(); err != nil {
		return nil, err
	}
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Controller{
		id:        id,
		wallet:    wallet,
		deps:      deps,
		logg:      deps.Logger,
		stage:     enums.PublishStageMetadata,
		updatedAt: deps.Now().UTC(),
	}, nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Account() chain.Address { return c.wallet.Account }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe streams snapshots starting with the current one. The channel
// closes after a terminal snapshot or when cancel is called.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub.subscribe(c.snapshotLocked())
}

// Draft returns a copy of the staged draft without its files.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	d.Audio, d.Cover = nil, nil
	d.Tiers = append([]TierInput(nil), c.draft.Tiers...)
	d.Tracks = append([]TrackInput(nil), c.draft.Tracks...)
	return d
}

// Idle reports whether no operation is running and nobody is watching the
// session, and when the session last changed.
func (c *Controller) Idle() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy && c.hub.count() == 0, c.updatedAt
}

// SubmitMetadata validates album metadata and any extra tracks, then moves
// to the audio upload stage. Invalid input leaves the stage unchanged.
func (c *Controller) SubmitMetadata(ctx context.Context, md Metadata, extra ...TrackInput) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(enums.PublishStageMetadata); err != nil {
		return c.snapshotLocked(), err
	}
	if err := ValidateMetadata(md); err != nil {
		return c.snapshotLocked(), err
	}
	if err := validateTracks(extra, c.deps.MaxTracks); err != nil {
		return c.snapshotLocked(), err
	}
	c.draft.Metadata = md.normalized()
	c.draft.Tracks = append([]TrackInput(nil), extra...)
	c.logg.Info(c.logCtx(ctx), "publish metadata accepted")
	c.advanceLocked(enums.PublishStageAudioUpload)
	return c.snapshotLocked(), nil
}

// UploadAudio stores the track audio. A nil file retries the staged one.
func (c *Controller) UploadAudio(ctx context.Context, file *storage.File) (Snapshot, error) {
	return c.upload(ctx, enums.PublishStageAudioUpload, file)
}

// UploadCoverArt stores the album cover. A nil file retries the staged one.
func (c *Controller) UploadCoverArt(ctx context.Context, file *storage.File) (Snapshot, error) {
	return c.upload(ctx, enums.PublishStageCoverUpload, file)
}

// ConfigureTiers replaces the staged tier set. It may be repeated until the
// deploy starts.
func (c *Controller) ConfigureTiers(ctx context.Context, tiers []TierInput) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openLocked(); err != nil {
		return c.snapshotLocked(), err
	}
	ready := c.stage == enums.PublishStageDeploy && !c.deploying && c.checkpoint == nil
	if c.stage != enums.PublishStageTierConfig && !ready {
		return c.snapshotLocked(), c.wrongStage(enums.PublishStageTierConfig)
	}
	if err := ValidateTiers(tiers); err != nil {
		return c.snapshotLocked(), err
	}
	c.draft.Tiers = normalizeTiers(tiers)
	if c.stage == enums.PublishStageTierConfig {
		c.advanceLocked(enums.PublishStageDeploy)
	} else {
		c.emitLocked()
	}
	c.logg.Info(c.logCtx(ctx), "publish tiers configured")
	return c.snapshotLocked(), nil
}

// Cancel discards the draft before the deploy starts. During a deploy it
// stops the saga at the next step boundary; submitted transactions stand.
func (c *Controller) Cancel(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage.IsTerminal() {
		return c.snapshotLocked(), c.closedError()
	}
	if c.deploying {
		c.cancelRequested = true
		c.logg.Warn(c.logCtx(ctx), "deploy cancellation requested")
		return c.snapshotLocked(), nil
	}
	if c.cancelOp != nil {
		c.cancelOp()
		c.cancelOp = nil
	}
	c.busy = false
	c.failLocked(StageError{
		Stage:      c.stage,
		Code:       pkgerrors.CodeCancelled,
		Reason:     "publish cancelled",
		NextAction: ActionStartOver,
	})
	c.draft = Draft{}
	c.logg.Info(c.logCtx(ctx), "publish cancelled")
	return c.snapshotLocked(), nil
}

func (c *Controller) upload(ctx context.Context, stage enums.PublishStage, file *storage.File) (Snapshot, error) {
	staged, attempt, opCtx, snap, err := c.startUpload(ctx, stage, file)
	if err != nil {
		return snap, err
	}
	policy := c.deps.AudioPolicy
	if stage == enums.PublishStageCoverUpload {
		policy = c.deps.CoverPolicy
	}
	if err := policy.Check(staged); err != nil {
		return c.finishUpload(ctx, stage, attempt, storage.Result{}, err)
	}
	res, err := c.deps.Uploader.Upload(opCtx, staged, c.progressFunc(stage, attempt))
	return c.finishUpload(ctx, stage, attempt, res, err)
}

func (c *Controller) startUpload(ctx context.Context, stage enums.PublishStage, file *storage.File) (*storage.File, uint64, context.Context, Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(stage); err != nil {
		return nil, 0, nil, c.snapshotLocked(), err
	}
	slot := c.stagedSlot(stage)
	if file != nil {
		if *slot != nil && *slot != file {
			_ = (*slot).Release()
		}
		*slot = file
	}
	if *slot == nil {
		err := pkgerrors.New(pkgerrors.CodeValidation, "no file selected").
			WithDetails(map[string]string{"file": "is required"})
		return nil, 0, nil, c.snapshotLocked(), err
	}

	opCtx, cancel := context.WithCancel(ctx)
	c.busy = true
	c.cancelOp = cancel
	c.attempt++
	c.progress = 0
	c.emitLocked()
	return *slot, c.attempt, opCtx, Snapshot{}, nil
}

func (c *Controller) finishUpload(ctx context.Context, stage enums.PublishStage, attempt uint64, res storage.Result, uploadErr error) (Snapshot, error) {
	kind := uploadKind(stage)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt != attempt || c.stage != stage {
		return c.snapshotLocked(), c.closedError()
	}
	if c.cancelOp != nil {
		c.cancelOp()
		c.cancelOp = nil
	}
	c.busy = false
	slot := c.stagedSlot(stage)
	c.deps.Metrics.ObserveUpload(kind, res.Size, uploadErr)

	if uploadErr != nil {
		logCtx := c.logg.WithFields(c.logCtx(ctx), map[string]any{"kind": kind})
		if storage.IsValidation(uploadErr) {
			_ = (*slot).Release()
			*slot = nil
			c.logg.Warn(c.logg.WithField(logCtx, "error", uploadErr.Error()), "upload rejected")
			return c.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeValidation, uploadErr, kind+" file rejected").
				WithDetails(map[string]string{"file": uploadErr.Error(), "next_action": ActionReselectFile})
		}
		c.logg.Error(logCtx, "upload failed", uploadErr)
		return c.snapshotLocked(), pkgerrors.Wrap(pkgerrors.CodeStorage, uploadErr, kind+" upload failed").
			WithDetails(map[string]string{"next_action": ActionRetryUpload})
	}

	_ = (*slot).Release()
	*slot = nil
	if stage == enums.PublishStageAudioUpload {
		c.draft.AudioCID = res.ContentAddress
	} else {
		c.draft.CoverCID = res.ContentAddress
	}
	c.progress = 100
	c.emitLocked()
	c.logg.Info(c.logg.WithFields(c.logCtx(ctx), map[string]any{
		"kind":            kind,
		"content_address": res.ContentAddress,
		"size":            res.Size,
	}), "upload stored")
	c.advanceLocked(nextStage(stage))
	return c.snapshotLocked(), nil
}

// progressFunc reports upload progress for one attempt. Reports from a
// superseded attempt or a stage already left are dropped, and 100 is only
// reached once the upload returns.
func (c *Controller) progressFunc(stage enums.PublishStage, attempt uint64) storage.ProgressFunc {
	return func(pct int) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.attempt != attempt || c.stage != stage || !c.busy {
			return
		}
		if pct > 99 {
			pct = 99
		}
		if pct <= c.progress {
			return
		}
		c.progress = pct
		c.emitLocked()
	}
}

// adoptUpload records content that was stored before the session started.
func (c *Controller) adoptUpload(ctx context.Context, stage enums.PublishStage, contentAddress string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.beginLocked(stage); err != nil {
		return c.snapshotLocked(), err
	}
	if stage == enums.PublishStageAudioUpload {
		c.draft.AudioCID = contentAddress
	} else {
		c.draft.CoverCID = contentAddress
	}
	c.progress = 100
	c.emitLocked()
	c.logg.Info(c.logg.WithField(c.logCtx(ctx), "content_address", contentAddress), "pre-uploaded content adopted")
	c.advanceLocked(nextStage(stage))
	return c.snapshotLocked(), nil
}

func (c *Controller) stagedSlot(stage enums.PublishStage) **storage.File {
	if stage == enums.PublishStageAudioUpload {
		return &c.draft.Audio
	}
	return &c.draft.Cover
}

func uploadKind(stage enums.PublishStage) string {
	if stage == enums.PublishStageAudioUpload {
		return "audio"
	}
	return "cover"
}

func nextStage(stage enums.PublishStage) enums.PublishStage {
	next, err := stage.Next()
	if err != nil {
		return enums.PublishStageError
	}
	return next
}

func (c *Controller) openLocked() error {
	if c.stage.IsTerminal() {
		return c.closedError()
	}
	if c.busy {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "another operation is in progress").
			WithDetails(map[string]string{"stage": c.stage.String()})
	}
	return nil
}

func (c *Controller) beginLocked(stage enums.PublishStage) error {
	if err := c.openLocked(); err != nil {
		return err
	}
	if c.stage != stage {
		return c.wrongStage(stage)
	}
	return nil
}

func (c *Controller) wrongStage(expected enums.PublishStage) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "operation not allowed in current stage").
		WithDetails(map[string]string{"expected": expected.String(), "stage": c.stage.String()})
}

func (c *Controller) closedError() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "publish session has ended").
		WithDetails(map[string]string{"stage": c.stage.String()})
}

func (c *Controller) advanceLocked(next enums.PublishStage) {
	c.stage = next
	c.step = enums.DeployStepNone
	c.progress = 0
	c.deps.Metrics.IncTransition(next.String())
	c.emitLocked()
}

// failLocked moves the session to the absorbing error stage.
func (c *Controller) failLocked(serr StageError) {
	c.draft.release()
	c.failure = &serr
	c.stage = enums.PublishStageError
	outcome := "error"
	if serr.Code == pkgerrors.CodeCancelled {
		outcome = "cancelled"
	}
	c.deps.Metrics.IncTransition(enums.PublishStageError.String())
	c.deps.Metrics.IncOutcome(outcome)
	c.emitLocked()
}

func (c *Controller) emitLocked() {
	c.updatedAt = c.deps.Now().UTC()
	c.hub.publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  c.id,
		Account:    c.wallet.Account,
		Stage:      c.stage,
		DeployStep: c.step,
		Progress:   c.progress,
		AudioCID:   c.draft.AudioCID,
		CoverCID:   c.draft.CoverCID,
		UpdatedAt:  c.updatedAt,
	}
	if c.draft.CollectionID != nil {
		id := *c.draft.CollectionID
		snap.CollectionID = &id
	}
	if c.checkpoint != nil {
		snap.TrackIDs = append([]uint64(nil), c.checkpoint.TrackIDs...)
	}
	if c.failure != nil {
		serr := *c.failure
		snap.Error = &serr
	}
	return snap
}

func (c *Controller) logCtx(ctx context.Context) context.Context {
	ctx = c.logg.WithSessionID(ctx, c.id)
	return c.logg.WithAccount(ctx, c.wallet.Account.String())
}
