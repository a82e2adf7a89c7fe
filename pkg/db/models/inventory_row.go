package models

import (
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
)

// InventoryRow holds the unit balance for one blood type.
type InventoryRow struct {
	BloodType enums.BloodType `gorm:"column:blood_type;type:text;primaryKey"`
	Units     int             `gorm:"column:units;not null;default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRow) TableName() string { return "inventory" }
