package donations

import (
	"context"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, donation *models.Donation) error
	List(ctx context.Context, bloodType *enums.BloodType, params pagination.Params) ([]models.Donation, int64, error)
	Recent(ctx context.Context, limit int) ([]models.Donation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a donations repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, donation *models.Donation) error {
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *repository) List(ctx context.Context, bloodType *enums.BloodType, params pagination.Params) ([]models.Donation, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Donation{})
	if bloodType != nil {
		query = query.Where("blood_type = ?", *bloodType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	params = params.Normalize()
	var rows []models.Donation
	if err := query.
		Order("created_at DESC").
		Order("donated_at DESC").
		Limit(params.PageSize).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]models.Donation, error) {
	var rows []models.Donation
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("donated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
