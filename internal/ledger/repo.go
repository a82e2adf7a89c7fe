package ledger

import (
	"context"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the only code that touches inventory rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context) ([]models.InventoryRow, error)
	Get(ctx context.Context, bloodType enums.BloodType) (*models.InventoryRow, error)
	Increment(ctx context.Context, bloodType enums.BloodType, units int) (bool, error)
	DecrementIfAvailable(ctx context.Context, bloodType enums.BloodType, units int) (bool, error)
	CompareAndSet(ctx context.Context, bloodType enums.BloodType, expected, next int) (bool, error)
	EnsureRows(ctx context.Context, types []enums.BloodType) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) List(ctx context.Context) ([]models.InventoryRow, error) {
	var rows []models.InventoryRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Get(ctx context.Context, bloodType enums.BloodType) (*models.InventoryRow, error) {
	var row models.InventoryRow
	if err := r.db.WithContext(ctx).First(&row, "blood_type = ?", bloodType).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Increment adds units to the row. It reports false when the row does not exist.
func (r *repository) Increment(ctx context.Context, bloodType enums.BloodType, units int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryRow{}).
		Where("blood_type = ?", bloodType).
		Updates(map[string]any{
			"units":      gorm.Expr("units + ?", units),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DecrementIfAvailable subtracts units only when the balance covers them. The
// check and the write are one statement, so concurrent callers cannot overdraw.
func (r *repository) DecrementIfAvailable(ctx context.Context, bloodType enums.BloodType, units int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryRow{}).
		Where("blood_type = ? AND units >= ?", bloodType, units).
		Updates(map[string]any{
			"units":      gorm.Expr("units - ?", units),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CompareAndSet writes next only if the balance still equals expected.
func (r *repository) CompareAndSet(ctx context.Context, bloodType enums.BloodType, expected, next int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryRow{}).
		Where("blood_type = ? AND units = ?", bloodType, expected).
		Updates(map[string]any{
			"units":      next,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// EnsureRows inserts a zero balance for every missing type and leaves existing rows alone.
func (r *repository) EnsureRows(ctx context.Context, types []enums.BloodType) error {
	if len(types) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]models.InventoryRow, 0, len(types))
	for _, bt := range types {
		rows = append(rows, models.InventoryRow{BloodType: bt, UpdatedAt: now})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "blood_type"}}, DoNothing: true}).
		Create(&rows).Error
}
