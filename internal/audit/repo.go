package audit

import (
	"context"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	dbtypes "github.com/bloodbank/bloodbank-backend/pkg/db/types"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists and queries audit rows.
type Repository interface {
	Create(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]models.AuditLog, int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, entry Entry) error {
	row := toModel(entry)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *repository) List(ctx context.Context, filter Filter) ([]models.AuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if actor := strings.ToLower(strings.TrimSpace(filter.Actor)); actor != "" {
		query = query.Where("LOWER(actor_email) LIKE ?", "%"+actor+"%")
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		query = query.Where("created_at <= ?", filter.Until.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	params := pagination.Params{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	var rows []models.AuditLog
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.PageSize).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteBefore removes rows created strictly before cutoff.
func (r *repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func toModel(entry Entry) models.AuditLog {
	row := models.AuditLog{
		Action:     entry.Action,
		ActorEmail: optional(strings.ToLower(entry.Actor.Email)),
		ActorRole:  optional(string(entry.Actor.Role)),
		EntityType: optional(string(entry.EntityType)),
		EntityID:   optional(entry.EntityID),
		IP:         optional(entry.Actor.IP),
		Details:    dbtypes.JSON(entry.Details),
		CreatedAt:  time.Now().UTC(),
	}
	if entry.Actor.ID != uuid.Nil {
		id := entry.Actor.ID
		row.ActorID = &id
	}
	if row.Details == nil {
		row.Details = dbtypes.JSON{}
	}
	return row
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// toView maps a stored row to the listing shape.
func toView(row models.AuditLog) Log {
	view := Log{
		ID:         row.ID.String(),
		Action:     row.Action,
		ActorEmail: deref(row.ActorEmail),
		ActorRole:  enums.UserRole(deref(row.ActorRole)),
		EntityType: enums.AuditEntityType(deref(row.EntityType)),
		EntityID:   deref(row.EntityID),
		IP:         deref(row.IP),
		Details:    map[string]any(row.Details),
		CreatedAt:  row.CreatedAt,
	}
	if row.ActorID != nil {
		view.ActorID = row.ActorID.String()
	}
	if view.Details == nil {
		view.Details = map[string]any{}
	}
	return view
}
