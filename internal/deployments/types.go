package deployments

import (
	"time"

	"github.com/angelmondragon/soundmint-backend/pkg/db/models"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// DeploymentDTO is the admin view of one ledger row.
type DeploymentDTO struct {
	ID              string                 `json:"id"`
	SessionID       string                 `json:"session_id"`
	ResumedFrom     string                 `json:"resumed_from,omitempty"`
	Account         string                 `json:"account"`
	Title           string                 `json:"title"`
	CollectionID    *uint64                `json:"collection_id,omitempty"`
	Step            enums.DeployStep       `json:"step"`
	Status          enums.DeploymentStatus `json:"status"`
	TracksTotal     int                    `json:"tracks_total"`
	TracksConfirmed int                    `json:"tracks_confirmed"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	Orphaned        bool                   `json:"orphaned"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// DeploymentsPageDTO is a cursor-paginated slice of the ledger.
type DeploymentsPageDTO struct {
	Items      []DeploymentDTO `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toDTO(m models.Deployment) DeploymentDTO {
	dto := DeploymentDTO{
		ID:              m.ID,
		SessionID:       m.SessionID,
		Account:         m.Account,
		Title:           m.Title,
		CollectionID:    m.CollectionID.Ptr(),
		Step:            m.Step,
		Status:          m.Status,
		TracksTotal:     m.TracksTotal,
		TracksConfirmed: m.TracksConfirmed,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ResumedFrom != nil {
		dto.ResumedFrom = *m.ResumedFrom
	}
	if m.FailureReason != nil {
		dto.FailureReason = *m.FailureReason
	}
	// A collection exists on chain but was never finalized.
	dto.Orphaned = m.CollectionID.Valid && m.Status != enums.DeploymentStatusComplete
	return dto
}
