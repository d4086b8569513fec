package deployments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/soundmint-backend/internal/publish"
	"github.com/angelmondragon/soundmint-backend/internal/repo"
	"github.com/angelmondragon/soundmint-backend/pkg/db"
	"github.com/angelmondragon/soundmint-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/soundmint-backend/pkg/db/types"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
	"github.com/angelmondragon/soundmint-backend/pkg/pagination"
)

// notSuperseded drops failed attempts that a later resumed session took over.
const notSuperseded = "NOT EXISTS (SELECT 1 FROM deployments r WHERE r.resumed_from = deployments.session_id)"

// Repository persists the deployments ledger.
type Repository struct {
	repo.Base
	now func() time.Time
}

var _ publish.DeploymentRecorder = (*Repository)(nil)

// NewRepository binds the ledger to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db), now: time.Now}
}

// Record upserts the row for rec.SessionID. Every field but the creation
// time follows the latest record.
func (r *Repository) Record(ctx context.Context, rec publish.DeploymentRecord) error {
	if rec.SessionID == "" {
		return gorm.ErrInvalidValue
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("invalid deployment status %q", rec.Status)
	}
	now := r.now().UTC()
	row := models.Deployment{
		ID:              uuid.NewString(),
		SessionID:       rec.SessionID,
		ResumedFrom:     optional(rec.ResumedFrom),
		Account:         rec.Account.String(),
		Title:           rec.Title,
		CollectionID:    dbtypes.NewChainID(rec.CollectionID),
		Step:            rec.Step,
		Status:          rec.Status,
		TracksTotal:     rec.TracksTotal,
		TracksConfirmed: rec.TracksConfirmed,
		FailureReason:   optional(rec.FailureReason),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"resumed_from", "account", "title", "collection_id", "step", "status",
			"tracks_total", "tracks_confirmed", "failure_reason", "updated_at",
		}),
	}).Create(&row).Error
	if db.IsUniqueViolation(err, "resumed_from") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "deployment already resumed").
			WithDetails(map[string]any{"resumed_from": rec.ResumedFrom})
	}
	return err
}

// FindBySession returns the row for sessionID.
func (r *Repository) FindBySession(ctx context.Context, sessionID string) (models.Deployment, error) {
	var row models.Deployment
	err := r.DB(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	return row, err
}

// ListIncomplete pages through attempts that have not completed and were
// not taken over by a resumed session, most recently touched first.
func (r *Repository) ListIncomplete(ctx context.Context, params pagination.Params) (DeploymentsPageDTO, error) {
	page, err := pagination.Resolve(params)
	if err != nil {
		return DeploymentsPageDTO{}, err
	}

	var rows []models.Deployment
	err = r.DB(ctx).
		Where("status <> ?", enums.DeploymentStatusComplete).
		Where(notSuperseded).
		Order("updated_at DESC").
		Order("id DESC").
		Offset(page.Offset).
		Limit(page.Limit + 1).
		Find(&rows).Error
	if err != nil {
		return DeploymentsPageDTO{}, err
	}

	out := DeploymentsPageDTO{Items: make([]DeploymentDTO, 0, len(rows))}
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
		out.NextCursor = pagination.EncodeCursor(page.Offset + page.Limit)
	}
	for _, row := range rows {
		out.Items = append(out.Items, toDTO(row))
	}
	return out, nil
}

// MarkStale fails in-progress attempts untouched since cutoff, which is what
// a process exit in the middle of a deploy leaves behind.
func (r *Repository) MarkStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Deployment{}).
		Where("status = ? AND updated_at < ?", enums.DeploymentStatusInProgress, cutoff.UTC()).
		Updates(map[string]any{
			"status":         enums.DeploymentStatusFailed,
			"failure_reason": reason,
			"updated_at":     r.now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
