package models

import (
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Donation is one collected unit. Rows are never updated.
type Donation struct {
	ID        uuid.UUID       `gorm:"column:id;type:text;primaryKey"`
	DonorID   string          `gorm:"column:donor_id;not null"`
	DonorName string          `gorm:"column:donor_name;not null"`
	BloodType enums.BloodType `gorm:"column:blood_type;type:text;not null"`
	DonatedAt time.Time       `gorm:"column:donated_at;not null"`
	CreatedBy *uuid.UUID      `gorm:"column:created_by;type:text"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (Donation) TableName() string { return "donations" }

// BeforeCreate assigns an id when the caller did not.
func (d *Donation) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
