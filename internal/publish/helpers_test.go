package publish

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/chain/memchain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/storage"
)

const (
	testContract  = chain.Address("0x00000000000000000000000000000000000000c0")
	artistAccount = chain.Address("0x00000000000000000000000000000000000000a1")
	otherAccount  = chain.Address("0x00000000000000000000000000000000000000b2")
	publisherRole = "ARTIST_ROLE"
)

type fakeUploader struct {
	mu    sync.Mutex
	errs  []error
	cids  map[string]string
	calls int
	late  storage.ProgressFunc
}

func (f *fakeUploader) Upload(_ context.Context, file *storage.File, onProgress storage.ProgressFunc) (storage.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		onProgress(10)
		return storage.Result{}, err
	}
	onProgress(25)
	onProgress(60)
	onProgress(40)
	f.late = onProgress
	cid := f.cids[file.Name]
	if cid == "" {
		cid = "cid-" + file.Name
	}
	return storage.Result{ContentAddress: cid, Size: file.Size, ContentType: file.ContentType}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []DeploymentRecord
}

func (m *memRecorder) Record(_ context.Context, rec DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memRecorder) last() DeploymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[len(m.records)-1]
}

type harness struct {
	ledger      *memchain.Ledger
	uploader    *fakeUploader
	recorder    *memRecorder
	checkpoints *MemoryCheckpoints
	deps        Dependencies
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ledger:      memchain.New(testContract),
		uploader:    &fakeUploader{cids: map[string]string{"song.mp3": "cid123", "cover.png": "cidCover"}},
		recorder:    &memRecorder{},
		checkpoints: NewMemoryCheckpoints(),
	}
	h.ledger.GrantRole(artistAccount, publisherRole)
	h.deps = Dependencies{
		Uploader:      h.uploader,
		AudioPolicy:   storage.Policy{Label: "audio"},
		CoverPolicy:   storage.Policy{Label: "cover", AllowedTypes: storage.ImageTypes},
		Checkpoints:   h.checkpoints,
		Recorder:      h.recorder,
		Logger:        logger.Nop(),
		PublisherRole: publisherRole,
		MaxTracks:     5,
	}
	return h
}

func (h *harness) session(t *testing.T, account chain.Address) *Controller {
	t.Helper()
	c, err := NewController("session-1", h.ledger.Wallet(account), h.deps)
	require.NoError(t, err)
	return c
}

func validMetadata() Metadata {
	return Metadata{
		Title:           "Low Tide",
		Artist:          "Nova",
		Genre:           "Ambient",
		Description:     "first record",
		Tags:            []string{"calm", " "},
		DurationSeconds: 215,
		RightsCleared:   true,
	}
}

func audioFile() *storage.File {
	return storage.NewBytesFile("song.mp3", "audio/mpeg", []byte("ID3 audio bytes"))
}

func coverFile() *storage.File {
	return storage.NewBytesFile("cover.png", "image/png", []byte("\x89PNG cover"))
}

func goldOnly() []TierInput {
	return []TierInput{
		{Tier: enums.TierBronze},
		{Tier: enums.TierSilver},
		{Tier: enums.TierGold, Enabled: true, Price: big.NewInt(50_000_000_000_000_000), MaxSupply: 100},
		{Tier: enums.TierPlatinum},
	}
}

// stageForDeploy walks a session through every stage before the deploy.
func stageForDeploy(t *testing.T, c *Controller, extra ...TrackInput) {
	t.Helper()
	ctx := context.Background()
	_, err := c.SubmitMetadata(ctx, validMetadata(), extra...)
	require.NoError(t, err)
	_, err = c.UploadAudio(ctx, audioFile())
	require.NoError(t, err)
	_, err = c.UploadCoverArt(ctx, coverFile())
	require.NoError(t, err)
	_, err = c.ConfigureTiers(ctx, goldOnly())
	require.NoError(t, err)
}

func collect(ch <-chan Snapshot) []Snapshot {
	var out []Snapshot
	for snap := range ch {
		out = append(out, snap)
	}
	return out
}
