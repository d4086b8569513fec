package models

import (
	"time"

	dbtypes "github.com/angelmondragon/soundmint-backend/pkg/db/types"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

// Deployment is one publish deploy attempt in the deployments ledger.
type Deployment struct {
	ID              string                 `gorm:"column:id;type:varchar(36);primaryKey"`
	SessionID       string                 `gorm:"column:session_id;type:varchar(64);not null;uniqueIndex:idx_deployments_session_id"`
	ResumedFrom     *string                `gorm:"column:resumed_from;type:varchar(64);uniqueIndex:idx_deployments_resumed_from"`
	Account         string                 `gorm:"column:account;type:varchar(64);not null"`
	Title           string                 `gorm:"column:title;type:varchar(255);not null"`
	CollectionID    dbtypes.ChainID        `gorm:"column:collection_id;type:varchar(78)"`
	Step            enums.DeployStep       `gorm:"column:step;type:varchar(32);not null;default:''"`
	Status          enums.DeploymentStatus `gorm:"column:status;type:varchar(16);not null;default:in_progress;index:idx_deployments_status_updated,priority:1"`
	TracksTotal     int                    `gorm:"column:tracks_total;not null;default:0"`
	TracksConfirmed int                    `gorm:"column:tracks_confirmed;not null;default:0"`
	FailureReason   *string                `gorm:"column:failure_reason;type:text"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime;index:idx_deployments_status_updated,priority:2"`
}

func (Deployment) TableName() string { return "deployments" }
