package publish

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

func TestSubmitMetadataRejectsEmptyTitle(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)

	md := Metadata{Title: "", Artist: "X", Genre: "Pop", RightsCleared: true}
	snap, err := c.SubmitMetadata(context.Background(), md)
	require.Error(t, err)

	perr := pkgerrors.As(err)
	require.NotNil(t, perr)
	assert.Equal(t, pkgerrors.CodeValidation, perr.Code())
	assert.Equal(t, map[string]string{"title": "is required"}, perr.Details())
	assert.Equal(t, enums.PublishStageMetadata, snap.Stage)
	assert.Equal(t, enums.PublishStageMetadata, c.Snapshot().Stage)
}

func TestSubmitMetadataFieldErrors(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)

	_, err := c.SubmitMetadata(context.Background(), Metadata{Title: "  ", Artist: " ", Genre: "Pop"})
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "is required", details["title"])
	assert.Equal(t, "is required", details["artist"])
	assert.Equal(t, "must be confirmed", details["rights_cleared"])
	assert.NotContains(t, details, "genre")

	_, err = c.SubmitMetadata(context.Background(), validMetadata(), TrackInput{Title: "B-side"})
	require.Error(t, err)
	details = pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "is required", details["tracks[0].audio_cid"])
	assert.Equal(t, enums.PublishStageMetadata, c.Snapshot().Stage)
}

func TestSubmitMetadataAdvancesAndTrims(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)

	md := validMetadata()
	md.Title = "  Low Tide  "
	snap, err := c.SubmitMetadata(context.Background(), md)
	require.NoError(t, err)
	assert.Equal(t, enums.PublishStageAudioUpload, snap.Stage)
	assert.Equal(t, "Low Tide", c.Draft().Metadata.Title)
	assert.Equal(t, []string{"calm"}, c.Draft().Metadata.Tags)

	_, err = c.SubmitMetadata(context.Background(), md)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUploadAudioStoresContentAddress(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	_, err := c.SubmitMetadata(context.Background(), validMetadata())
	require.NoError(t, err)

	snap, err := c.UploadAudio(context.Background(), audioFile())
	require.NoError(t, err)
	assert.Equal(t, enums.PublishStageCoverUpload, snap.Stage)
	assert.Equal(t, "cid123", snap.AudioCID)
	assert.Equal(t, "cid123", c.Draft().AudioCID)
}

func TestUploadTransientFailureKeepsStagedFile(t *testing.T) {
	h := newHarness(t)
	h.uploader.errs = []error{storage.Transient("put", errors.New("connection reset"))}
	c := h.session(t, artistAccount)
	_, err := c.SubmitMetadata(context.Background(), validMetadata())
	require.NoError(t, err)

	snap, err := c.UploadAudio(context.Background(), audioFile())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStorage))
	assert.Equal(t, enums.PublishStageAudioUpload, snap.Stage)

	snap, err = c.UploadAudio(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cid123", snap.AudioCID)
	assert.Equal(t, 2, h.uploader.calls)
}

func TestUploadValidationFailureRequiresReselection(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	_, err := c.SubmitMetadata(context.Background(), validMetadata())
	require.NoError(t, err)
	_, err = c.UploadAudio(context.Background(), audioFile())
	require.NoError(t, err)

	_, err = c.UploadCoverArt(context.Background(), storage.NewBytesFile("notes.txt", "text/plain", []byte("not an image")))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 1, h.uploader.calls)

	_, err = c.UploadCoverArt(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"file": "is required"}, pkgerrors.As(err).Details())

	snap, err := c.UploadCoverArt(context.Background(), coverFile())
	require.NoError(t, err)
	assert.Equal(t, enums.PublishStageTierConfig, snap.Stage)
	assert.Equal(t, "cidCover", snap.CoverCID)
}

func TestAudioProgressStopsOnceCoverUploadBegins(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	events, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	_, err := c.SubmitMetadata(ctx, validMetadata())
	require.NoError(t, err)
	_, err = c.UploadAudio(ctx, audioFile())
	require.NoError(t, err)
	audioProgress := h.uploader.late

	_, err = c.UploadCoverArt(ctx, coverFile())
	require.NoError(t, err)
	audioProgress(80)

	var seen []Snapshot
	for len(events) > 0 {
		seen = append(seen, <-events)
	}
	coverStarted := false
	lastAudio := -1
	for _, s := range seen {
		switch s.Stage {
		case enums.PublishStageCoverUpload:
			coverStarted = true
		case enums.PublishStageAudioUpload:
			assert.False(t, coverStarted, "audio snapshot after cover upload began")
			assert.GreaterOrEqual(t, s.Progress, lastAudio)
			lastAudio = s.Progress
		}
	}
	assert.True(t, coverStarted)
	assert.Equal(t, 100, lastAudio)
}

func TestConfigureTiersRejectsAllDisabled(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	ctx := context.Background()
	_, err := c.SubmitMetadata(ctx, validMetadata())
	require.NoError(t, err)
	_, err = c.UploadAudio(ctx, audioFile())
	require.NoError(t, err)
	_, err = c.UploadCoverArt(ctx, coverFile())
	require.NoError(t, err)

	disabled := []TierInput{{Tier: enums.TierBronze}, {Tier: enums.TierSilver}, {Tier: enums.TierGold}, {Tier: enums.TierPlatinum}}
	snap, err := c.ConfigureTiers(ctx, disabled)
	require.Error(t, err)
	perr := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeValidation, perr.Code())
	assert.Equal(t, "enable at least one tier", perr.Message())
	assert.Equal(t, enums.PublishStageTierConfig, snap.Stage)
}

func TestConfigureTiersValidatesEnabledTiers(t *testing.T) {
	err := ValidateTiers([]TierInput{
		{Tier: enums.TierBronze, Enabled: true, Price: big.NewInt(0), MaxSupply: 10},
		{Tier: enums.TierSilver, Enabled: true, Price: big.NewInt(1), MaxSupply: MaxTierSupply + 1},
		{Tier: enums.TierGold, Enabled: true, Price: big.NewInt(1), MaxSupply: MaxTierSupply},
		{Tier: enums.TierGold},
	})
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Equal(t, "must be greater than zero", details["tiers.bronze.price"])
	assert.Contains(t, details, "tiers.silver.max_supply")
	assert.Equal(t, "is duplicated", details["tiers.gold"])
	assert.NotContains(t, details, "tiers.gold.price")
}

func TestConfigureTiersIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	stageForDeploy(t, c)
	first := c.Draft().Tiers

	snap, err := c.ConfigureTiers(context.Background(), goldOnly())
	require.NoError(t, err)
	assert.Equal(t, enums.PublishStageDeploy, snap.Stage)
	assert.Equal(t, first, c.Draft().Tiers)
	assert.Len(t, c.Draft().Tiers, len(enums.AllTiers))
}

func TestCancelBeforeDeployDiscardsDraft(t *testing.T) {
	h := newHarness(t)
	c := h.session(t, artistAccount)
	events, _ := c.Subscribe()

	_, err := c.SubmitMetadata(context.Background(), validMetadata())
	require.NoError(t, err)
	snap, err := c.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enums.PublishStageError, snap.Stage)
	require.NotNil(t, snap.Error)
	assert.Equal(t, pkgerrors.CodeCancelled, snap.Error.Code)
	assert.Empty(t, c.Draft().Metadata.Title)
	assert.Empty(t, h.ledger.Journal())

	all := collect(events)
	assert.Equal(t, enums.PublishStageError, all[len(all)-1].Stage)

	_, err = c.UploadAudio(context.Background(), audioFile())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = c.Cancel(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}
