package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	uniqueDonorConstraint = "uq_donations_donor_donated_at"
	maxRecent             = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput is one collected unit. Each donation adds exactly one unit.
type CreateInput struct {
	DonorID   string
	DonorName string
	BloodType enums.BloodType
	DonatedAt time.Time
	Actor     audit.Actor
}

type ListParams struct {
	BloodType *enums.BloodType
	Page      int
	PageSize  int
}

// Donation is the public view of a donation row.
type Donation struct {
	ID        string          `json:"id"`
	DonorID   string          `json:"donorId"`
	DonorName string          `json:"donorName"`
	BloodType enums.BloodType `json:"bloodType"`
	Units     int             `json:"units"`
	DonatedAt time.Time       `json:"donatedAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Service interface {
	Create(ctx context.Context, input CreateInput) (*Donation, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[Donation], error)
	Recent(ctx context.Context, n int) ([]Donation, error)
}

type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Ledger     ledger.Service
	Recorder   audit.Recorder
	Metrics    *metrics.BankMetrics
}

type service struct {
	db       txRunner
	repo     Repository
	ledger   ledger.Service
	recorder audit.Recorder
	metrics  *metrics.BankMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("donations repository is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = audit.Nop
	}
	return &service{
		db:       params.DB,
		repo:     params.Repository,
		ledger:   params.Ledger,
		recorder: recorder,
		metrics:  params.Metrics,
	}, nil
}

// Create stores the donation and credits one unit in the same transaction.
func (s *service) Create(ctx context.Context, input CreateInput) (*Donation, error) {
	input.DonorID = strings.TrimSpace(input.DonorID)
	input.DonorName = strings.TrimSpace(input.DonorName)
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	row := models.Donation{
		DonorID:   input.DonorID,
		DonorName: input.DonorName,
		BloodType: input.BloodType,
		DonatedAt: input.DonatedAt.UTC(),
	}
	if input.Actor.ID != uuid.Nil {
		id := input.Actor.ID
		row.CreatedBy = &id
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, &row); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "donor already exists").
					WithDetails(map[string]any{"constraint": uniqueDonorConstraint})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create donation")
		}
		return s.ledger.WithTx(tx).Add(ctx, input.BloodType, 1)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionDonationCreate,
		Actor:      input.Actor,
		EntityType: enums.AuditEntityDonation,
		EntityID:   row.ID.String(),
		Details: map[string]any{
			"donorId":   row.DonorID,
			"donorName": row.DonorName,
			"bloodType": string(row.BloodType),
			"units":     1,
		},
	})
	s.metrics.IncDonation(string(row.BloodType))

	view := toView(row)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[Donation], error) {
	if params.BloodType != nil && !params.BloodType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blood type %q", *params.BloodType))
	}
	paging := pagination.Params{Page: params.Page, PageSize: params.PageSize}.Normalize()
	rows, total, err := s.repo.List(ctx, params.BloodType, paging)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list donations")
	}
	page := pagination.NewPage(toViews(rows), total, paging)
	return &page, nil
}

// Recent returns the n newest donations, capped at maxRecent.
func (s *service) Recent(ctx context.Context, n int) ([]Donation, error) {
	if n <= 0 {
		return []Donation{}, nil
	}
	if n > maxRecent {
		n = maxRecent
	}
	rows, err := s.repo.Recent(ctx, n)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recent donations")
	}
	return toViews(rows), nil
}

func validateCreate(input CreateInput) error {
	details := map[string]any{}
	if input.DonorID == "" {
		details["donorId"] = "required"
	}
	if input.DonorName == "" {
		details["donorName"] = "required"
	}
	if !input.BloodType.IsValid() {
		details["bloodType"] = "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"
	}
	if input.DonatedAt.IsZero() {
		details["donatedAt"] = "required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid donation").WithDetails(details)
	}
	return nil
}

func toView(row models.Donation) Donation {
	return Donation{
		ID:        row.ID.String(),
		DonorID:   row.DonorID,
		DonorName: row.DonorName,
		BloodType: row.BloodType,
		Units:     1,
		DonatedAt: row.DonatedAt,
		CreatedAt: row.CreatedAt,
	}
}

func toViews(rows []models.Donation) []Donation {
	out := make([]Donation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toView(row))
	}
	return out
}
