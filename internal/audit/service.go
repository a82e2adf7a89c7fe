package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
)

// Filter narrows an audit listing. Since and Until are inclusive.
type Filter struct {
	Action     enums.AuditAction
	Actor      string
	EntityType enums.AuditEntityType
	Since      *time.Time
	Until      *time.Time
	Page       int
	PageSize   int
}

// Log is the public view of one audit row.
type Log struct {
	ID         string                `json:"id"`
	Action     enums.AuditAction     `json:"action"`
	ActorID    string                `json:"actorId,omitempty"`
	ActorEmail string                `json:"actorEmail,omitempty"`
	ActorRole  enums.UserRole        `json:"actorRole,omitempty"`
	EntityType enums.AuditEntityType `json:"entityType,omitempty"`
	EntityID   string                `json:"entityId,omitempty"`
	IP         string                `json:"ip,omitempty"`
	Details    map[string]any        `json:"details"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// ListResult is a page of audit rows plus the values the filter UI offers.
type ListResult struct {
	pagination.Page[Log]
	Actions     []enums.AuditAction     `json:"actions"`
	EntityTypes []enums.AuditEntityType `json:"entityTypes"`
}

// Service reads the audit trail.
type Service interface {
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Since != nil && filter.Until != nil && filter.Since.After(*filter.Until) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "since must not be after until")
	}
	params := pagination.Params{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = params.Page, params.PageSize

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit logs")
	}
	items := make([]Log, 0, len(rows))
	for _, row := range rows {
		items = append(items, toView(row))
	}
	return &ListResult{
		Page:        pagination.NewPage(items, total, params),
		Actions:     enums.AllAuditActions(),
		EntityTypes: enums.AllAuditEntityTypes(),
	}, nil
}
