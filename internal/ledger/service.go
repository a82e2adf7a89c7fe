package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"gorm.io/gorm"
)

const maxDrainAttempts = 5

// Service owns every mutation of the per-type unit balances.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Seed(ctx context.Context) error
	List(ctx context.Context) ([]Balance, error)
	Snapshot(ctx context.Context) (map[enums.BloodType]int, error)
	Add(ctx context.Context, bloodType enums.BloodType, units int) error
	Withdraw(ctx context.Context, bloodType enums.BloodType, units int) error
	Drain(ctx context.Context, bloodType enums.BloodType) (int, error)
}

// Balance is the public view of one inventory row.
type Balance struct {
	BloodType enums.BloodType `json:"bloodType"`
	Units     int             `json:"units"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx)}
}

// Seed guarantees one row per blood type.
func (s *service) Seed(ctx context.Context) error {
	if err := s.repo.EnsureRows(ctx, enums.AllBloodTypes()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed inventory")
	}
	return nil
}

// List returns all balances ordered ascending by blood type name.
func (s *service) List(ctx context.Context) ([]Balance, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory")
	}
	out := make([]Balance, 0, len(rows))
	for _, row := range rows {
		out = append(out, toBalance(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BloodType < out[j].BloodType })
	return out, nil
}

// Snapshot returns the current units keyed by blood type.
func (s *service) Snapshot(ctx context.Context) (map[enums.BloodType]int, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "snapshot inventory")
	}
	out := make(map[enums.BloodType]int, len(rows))
	for _, row := range rows {
		out[row.BloodType] = row.Units
	}
	return out, nil
}

func (s *service) Add(ctx context.Context, bloodType enums.BloodType, units int) error {
	if err := validate(bloodType, units); err != nil {
		return err
	}
	ok, err := s.repo.Increment(ctx, bloodType, units)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment inventory")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no inventory row for %s", bloodType))
	}
	return nil
}

// Withdraw removes units atomically. A short balance yields CodeInsufficient and
// leaves the row unchanged.
func (s *service) Withdraw(ctx context.Context, bloodType enums.BloodType, units int) error {
	if err := validate(bloodType, units); err != nil {
		return err
	}
	ok, err := s.repo.DecrementIfAvailable(ctx, bloodType, units)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw inventory")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInsufficient, fmt.Sprintf("insufficient %s", bloodType)).
			WithDetails(map[string]any{"bloodType": bloodType, "requested": units})
	}
	return nil
}

// Drain zeroes the balance of bloodType and returns how many units it held.
// Zero means the type was already empty and nothing changed.
func (s *service) Drain(ctx context.Context, bloodType enums.BloodType) (int, error) {
	if !bloodType.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blood type %q", bloodType))
	}
	for attempt := 0; attempt < maxDrainAttempts; attempt++ {
		row, err := s.repo.Get(ctx, bloodType)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no inventory row for %s", bloodType))
			}
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read inventory")
		}
		if row.Units == 0 {
			return 0, nil
		}
		ok, err := s.repo.CompareAndSet(ctx, bloodType, row.Units, 0)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "drain inventory")
		}
		if ok {
			return row.Units, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s balance kept changing, retry", bloodType))
}

func validate(bloodType enums.BloodType, units int) error {
	if !bloodType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blood type %q", bloodType))
	}
	if units < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "units must be a positive integer")
	}
	return nil
}

func toBalance(row models.InventoryRow) Balance {
	return Balance{BloodType: row.BloodType, Units: row.Units, UpdatedAt: row.UpdatedAt}
}
