package models

import (
	"time"

	dbtypes "github.com/bloodbank/bloodbank-backend/pkg/db/types"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of a notable action.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:text;primaryKey"`
	Action     enums.AuditAction `gorm:"column:action;not null"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:text"`
	ActorEmail *string           `gorm:"column:actor_email"`
	ActorRole  *string           `gorm:"column:actor_role"`
	EntityType *string           `gorm:"column:entity_type"`
	EntityID   *string           `gorm:"column:entity_id"`
	Details    dbtypes.JSON      `gorm:"column:details;type:text"`
	IP         *string           `gorm:"column:ip"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// BeforeCreate assigns an id when the caller did not.
func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
