package publish

import (
	"context"
	"strings"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// StartPublish runs a fully staged draft through every stage. The draft is
// checked up front; once the stream is returned it ends with exactly one
// Complete or Error snapshot and is then closed. Content already uploaded
// may be supplied as a content address instead of a file.
func (c *Controller) StartPublish(ctx context.Context, draft Draft) (<-chan Snapshot, error) {
	if err := preflight(draft, c.deps.MaxTracks); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if err := c.beginLocked(enums.PublishStageMetadata); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	stream, _ := c.hub.subscribe(c.snapshotLocked())
	c.mu.Unlock()

	go c.run(ctx, draft)
	return stream, nil
}

func preflight(d Draft, maxTracks int) error {
	if err := ValidateMetadata(d.Metadata); err != nil {
		return err
	}
	if err := validateTracks(d.Tracks, maxTracks); err != nil {
		return err
	}
	if err := ValidateTiers(d.Tiers); err != nil {
		return err
	}
	missing := map[string]string{}
	if d.Audio == nil && strings.TrimSpace(d.AudioCID) == "" {
		missing["audio"] = "is required"
	}
	if d.Cover == nil && strings.TrimSpace(d.CoverCID) == "" {
		missing["cover"] = "is required"
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(missing)
	}
	return nil
}

func (c *Controller) run(ctx context.Context, d Draft) {
	steps := []func() error{
		func() error {
			_, err := c.SubmitMetadata(ctx, d.Metadata, d.Tracks...)
			return err
		},
		func() error {
			if d.Audio == nil {
				_, err := c.adoptUpload(ctx, enums.PublishStageAudioUpload, strings.TrimSpace(d.AudioCID))
				return err
			}
			_, err := c.UploadAudio(ctx, d.Audio)
			return err
		},
		func() error {
			if d.Cover == nil {
				_, err := c.adoptUpload(ctx, enums.PublishStageCoverUpload, strings.TrimSpace(d.CoverCID))
				return err
			}
			_, err := c.UploadCoverArt(ctx, d.Cover)
			return err
		},
		func() error {
			_, err := c.ConfigureTiers(ctx, d.Tiers)
			return err
		},
		func() error {
			_, err := c.Deploy(ctx)
			return err
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.abandon(err)
			return
		}
	}
}

// abandon ends a non-interactive run that stopped before a terminal stage.
// Failures inside Deploy have already moved the session to Error.
func (c *Controller) abandon(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage.IsTerminal() {
		return
	}
	c.busy = false
	c.deploying = false
	code := pkgerrors.CodeOf(err)
	action := ActionStartOver
	switch code {
	case pkgerrors.CodeStorage:
		action = ActionRetryUpload
	case pkgerrors.CodeValidation:
		action = ActionFixFields
	}
	c.failLocked(StageError{
		Stage:      c.stage,
		Code:       code,
		Reason:     err.Error(),
		NextAction: action,
		Retryable:  pkgerrors.MetadataFor(code).Retryable,
	})
}
