package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/internal/chain/memchain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
)

const testContract = chain.Address("0x00000000000000000000000000000000000000c0")

type failingReader struct {
	chain.Reader
	failTrack uint64
}

func (f failingReader) ReadTrack(ctx context.Context, id uint64) (chain.TrackRecord, error) {
	if id == f.failTrack {
		return chain.TrackRecord{}, errors.New("gateway unavailable")
	}
	return f.Reader.ReadTrack(ctx, id)
}

func newTestMaterializer(t *testing.T, reader chain.Reader, maxProbe int) *Materializer {
	t.Helper()
	lister, err := NewProbeLister(reader, rate.NewLimiter(rate.Inf, 1), 4, nil)
	require.NoError(t, err)
	m, err := NewMaterializer(MaterializerParams{
		Lister:      lister,
		Reader:      reader,
		Concurrency: 4,
		MaxProbe:    maxProbe,
		DisplayCap:  20,
		USDRate:     decimal.NewFromInt(2500),
		Logger:      logger.Nop(),
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return m
}

func seedLedger(t *testing.T) *memchain.Ledger {
	t.Helper()
	l := memchain.New(testContract)
	coll := l.SeedCollection(chain.CollectionRecord{Title: "Tides", Artist: "Nova", Genre: "ambient", CoverCID: "cover1", Finalized: true})
	l.SeedTrack(chain.TrackRecord{CollectionID: coll, Title: "Low Tide", AudioCID: "cid123", DurationSeconds: 200, Active: true})
	l.SeedTrack(chain.TrackRecord{CollectionID: coll, Title: "Draft", Active: true})
	l.SeedTrack(chain.TrackRecord{CollectionID: coll, Title: "Retired", AudioCID: "cid9", Active: false})

	require.NoError(t, l.SetTier(chain.TierConfig{Tier: enums.TierSilver, Price: wei(1), MaxSupply: 100, CurrentSupply: 10, StartID: 500, SaleActive: true}))
	require.NoError(t, l.SetTier(chain.TierConfig{Tier: enums.TierGold, Price: wei(4), MaxSupply: 3, CurrentSupply: 3, StartID: 900, SaleActive: true}))
	return l
}

func TestSnapshotTokenIDsFromTierRange(t *testing.T) {
	l := seedLedger(t)
	m := newTestMaterializer(t, l, 50)

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Tracks)

	silver := enums.TierSilver
	var ids []uint64
	for _, e := range (Filter{HasAudio: true, Tier: &silver}).Apply(snap.Editions) {
		ids = append(ids, e.TokenID)
	}
	assert.Equal(t, []uint64{500, 501, 502, 503, 504, 505, 506, 507, 508, 509}, ids)
}

func TestSnapshotSoldOutTierOnlyInHistoricalView(t *testing.T) {
	l := seedLedger(t)
	m := newTestMaterializer(t, l, 50)

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)

	countGold := func(in []Edition) int {
		n := 0
		for _, e := range in {
			if e.Tier == enums.TierGold {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 6, countGold(Filter{}.Apply(snap.Editions)))
	assert.Zero(t, countGold(Filter{Available: true}.Apply(snap.Editions)))

	for _, e := range (Filter{Available: true}).Apply(snap.Editions) {
		assert.Equal(t, "cid123", e.AudioCID)
		assert.Equal(t, "Nova", e.Artist)
	}
}

func TestSnapshotIsDeterministic(t *testing.T) {
	l := seedLedger(t)
	for i := 0; i < 5; i++ {
		l.SeedTrack(chain.TrackRecord{CollectionID: 1, Title: "Extra", AudioCID: "cidX", Active: true})
	}
	m := newTestMaterializer(t, l, 50)

	first, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Editions, second.Editions)

	for i := 1; i < len(first.Editions); i++ {
		prev, cur := first.Editions[i-1], first.Editions[i]
		assert.LessOrEqual(t, prev.TrackID, cur.TrackID)
	}
}

func TestSnapshotRespectsProbeBound(t *testing.T) {
	l := seedLedger(t)
	m := newTestMaterializer(t, l, 1)

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Tracks)
}

func TestSnapshotFailsOnReadError(t *testing.T) {
	l := seedLedger(t)
	m := newTestMaterializer(t, failingReader{Reader: l, failTrack: 1}, 50)

	_, err := m.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read track 1")
}

func TestNewMaterializerValidatesParams(t *testing.T) {
	_, err := NewMaterializer(MaterializerParams{})
	require.Error(t, err)

	l := memchain.New(testContract)
	lister, err := NewProbeLister(l, nil, 0, nil)
	require.NoError(t, err)
	_, err = NewMaterializer(MaterializerParams{Lister: lister, Reader: l, Logger: logger.Nop(), MaxProbe: 10})
	require.Error(t, err)
}
