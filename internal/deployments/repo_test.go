package deployments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/logger"
	"github.com/angelmondragon/soundmint-backend/pkg/migrate"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

const account = "0x00000000000000000000000000000000000000a1"

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Run(context.Background(), sqlDB, "sqlite3", "../../pkg/migrate/migrations", "up"))
	return db
}

func newTestRepo(t *testing.T, now *time.Time) *Repository {
	t.Helper()
	r := NewRepository(setupLedgerDB(t))
	r.now = func() time.Time { return *now }
	return r
}

func record(session string, status enums.DeploymentStatus, step enums.DeployStep, collection *uint64) publish.DeploymentRecord {
	return publish.DeploymentRecord{
		SessionID:    session,
		Account:      account,
		Title:        "Low Tide",
		CollectionID: collection,
		Step:         step,
		Status:       status,
		TracksTotal:  2,
	}
}

func TestRecordUpsertsBySession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(t, &now)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, record("s1", enums.DeploymentStatusInProgress, enums.DeployStepCreatingCollection, nil)))
	first, err := r.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, first.CollectionID.Valid)

	now = now.Add(time.Minute)
	id := uint64(42)
	rec := record("s1", enums.DeploymentStatusFailed, enums.DeployStepAddingTracks, &id)
	rec.TracksConfirmed = 1
	rec.FailureReason = "execution reverted"
	require.NoError(t, r.Record(ctx, rec))

	got, err := r.FindBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, enums.DeploymentStatusFailed, got.Status)
	assert.Equal(t, enums.DeployStepAddingTracks, got.Step)
	assert.Equal(t, uint64(42), *got.CollectionID.Ptr())
	assert.Equal(t, 1, got.TracksConfirmed)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "execution reverted", *got.FailureReason)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	var count int64
	require.NoError(t, r.DB(ctx).Table("deployments").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordRejectsInvalidRows(t *testing.T) {
	now := time.Now()
	r := newTestRepo(t, &now)
	require.Error(t, r.Record(context.Background(), record("", enums.DeploymentStatusFailed, enums.DeployStepNone, nil)))
	require.Error(t, r.Record(context.Background(), record("s", "paused", enums.DeployStepNone, nil)))
}

func TestRecordRejectsSecondResumeOfSameAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(t, &now)
	ctx := context.Background()

	first := record("s2", enums.DeploymentStatusInProgress, enums.DeployStepAddingTracks, nil)
	first.ResumedFrom = "s1"
	require.NoError(t, r.Record(ctx, first))
	require.NoError(t, r.Record(ctx, first))

	second := record("s3", enums.DeploymentStatusInProgress, enums.DeployStepAddingTracks, nil)
	second.ResumedFrom = "s1"
	err := r.Record(ctx, second)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestListIncompleteHidesCompletedAndSuperseded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(t, &now)
	ctx := context.Background()
	id := uint64(42)

	require.NoError(t, r.Record(ctx, record("done", enums.DeploymentStatusComplete, enums.DeployStepDone, &id)))
	now = now.Add(time.Minute)
	require.NoError(t, r.Record(ctx, record("old", enums.DeploymentStatusFailed, enums.DeployStepAddingTracks, &id)))
	now = now.Add(time.Minute)
	resumed := record("new", enums.DeploymentStatusFailed, enums.DeployStepFinalizing, &id)
	resumed.ResumedFrom = "old"
	require.NoError(t, r.Record(ctx, resumed))
	now = now.Add(time.Minute)
	require.NoError(t, r.Record(ctx, record("early", enums.DeploymentStatusFailed, enums.DeployStepCreatingCollection, nil)))

	page, err := r.ListIncomplete(ctx, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "early", page.Items[0].SessionID)
	assert.False(t, page.Items[0].Orphaned)
	require.NotEmpty(t, page.NextCursor)

	page, err = r.ListIncomplete(ctx, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "new", page.Items[0].SessionID)
	assert.Equal(t, "old", page.Items[0].ResumedFrom)
	assert.True(t, page.Items[0].Orphaned)
	assert.Empty(t, page.NextCursor)
}

func TestSweepStaleFailsQuietAttempts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRepo(t, &now)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, record("quiet", enums.DeploymentStatusInProgress, enums.DeployStepAddingTracks, nil)))
	now = now.Add(50 * time.Minute)
	require.NoError(t, r.Record(ctx, record("busy", enums.DeploymentStatusInProgress, enums.DeployStepFinalizing, nil)))
	now = now.Add(20 * time.Minute)

	svc, err := NewService(ServiceParams{Repo: r, Logger: logger.Nop(), StaleAfter: time.Hour, Now: func() time.Time { return now }})
	require.NoError(t, err)

	n, err := svc.SweepStale(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	quiet, err := r.FindBySession(ctx, "quiet")
	require.NoError(t, err)
	assert.Equal(t, enums.DeploymentStatusFailed, quiet.Status)
	assert.Contains(t, *quiet.FailureReason, "abandoned")

	busy, err := r.FindBySession(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, enums.DeploymentStatusInProgress, busy.Status)
}

func TestServiceRejectsBadCursor(t *testing.T) {
	now := time.Now()
	svc, err := NewService(ServiceParams{Repo: newTestRepo(t, &now), Logger: logger.Nop(), StaleAfter: time.Hour})
	require.NoError(t, err)

	_, err = svc.ListIncomplete(context.Background(), pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
}
