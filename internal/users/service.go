package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/db"
	"github.com/bloodbank/bloodbank-backend/pkg/db/models"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
	"github.com/bloodbank/bloodbank-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionRevoker ends every session a user holds.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

type ListInput struct {
	Query    string
	Role     *enums.UserRole
	Page     int
	PageSize int
}

type CreateInput struct {
	FullName string
	Email    string
	Password string
	Role     enums.UserRole
	Actor    audit.Actor
}

// UpdateInput carries a partial change. Nil fields are left untouched.
type UpdateInput struct {
	FullName *string
	Role     *enums.UserRole
	Password *string
	Actor    audit.Actor
}

// Service is the administrative user management surface.
type Service interface {
	List(ctx context.Context, input ListInput) (*pagination.Page[UserDTO], error)
	Create(ctx context.Context, input CreateInput) (*UserDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*UserDTO, error)
	Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error
}

type ServiceParams struct {
	DB             txRunner
	Repository     *Repository
	PasswordConfig config.PasswordConfig
	Recorder       audit.Recorder
	// Sessions, when set, is cleared on delete and on role or password change.
	Sessions SessionRevoker
}

type service struct {
	db          txRunner
	repo        *Repository
	passwordCfg config.PasswordConfig
	recorder    audit.Recorder
	sessions    SessionRevoker
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("database client is required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = audit.Nop
	}
	return &service{
		db:          params.DB,
		repo:        params.Repository,
		passwordCfg: params.PasswordConfig,
		recorder:    recorder,
		sessions:    params.Sessions,
	}, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*pagination.Page[UserDTO], error) {
	if input.Role != nil && !input.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", *input.Role))
	}
	paging := pagination.Params{Page: input.Page, PageSize: input.PageSize}.Normalize()
	rows, total, err := s.repo.List(ctx, ListFilter{Query: input.Query, Role: input.Role, Paging: paging})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	page := pagination.NewPage(FromModels(rows), total, paging)
	return &page, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*UserDTO, error) {
	if input.Role == "" {
		input.Role = enums.UserRoleCustomer
	}
	created, err := CreateUser(ctx, s.db, s.passwordCfg, NewUser{
		FullName: input.FullName,
		Email:    input.Email,
		Role:     input.Role,
	}, input.Password)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionUserCreate,
		Actor:      input.Actor,
		EntityType: enums.AuditEntityUser,
		EntityID:   created.ID.String(),
		Details:    map[string]any{"email": created.Email, "role": string(created.Role)},
	})
	return created, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*UserDTO, error) {
	changes := map[string]any{}
	changed := []string{}
	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "fullName cannot be empty")
		}
		changes["full_name"] = name
		changed = append(changed, "fullName")
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", *input.Role))
		}
		changes["role"] = *input.Role
		changed = append(changed, "role")
	}
	if input.Password != nil {
		if err := security.CheckStrength(*input.Password); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		hash, err := security.HashPassword(*input.Password, s.passwordCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		changes["password_hash"] = hash
		changed = append(changed, "password")
	}
	if len(changes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no changes supplied")
	}

	var updated *models.User
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := findUser(ctx, repo, id)
		if err != nil {
			return err
		}
		if input.Role != nil && current.Role == enums.UserRoleAdmin && *input.Role != enums.UserRoleAdmin {
			if err := ensureNotLastAdmin(ctx, repo, "demote"); err != nil {
				return err
			}
		}
		if _, err := repo.Update(ctx, id, changes); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
		roleChanged := input.Role != nil && *input.Role != current.Role
		if roleChanged || input.Password != nil {
			if err := s.revokeSessions(ctx, id); err != nil {
				return err
			}
		}
		updated, err = findUser(ctx, repo, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionUserUpdate,
		Actor:      input.Actor,
		EntityType: enums.AuditEntityUser,
		EntityID:   id.String(),
		Details:    map[string]any{"email": updated.Email, "role": string(updated.Role), "changed": changed},
	})
	return FromModel(updated), nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actor audit.Actor) error {
	if actor.ID != uuid.Nil && actor.ID == id {
		return pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete your own account")
	}

	var deleted *models.User
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := findUser(ctx, repo, id)
		if err != nil {
			return err
		}
		if current.Role == enums.UserRoleAdmin {
			if err := ensureNotLastAdmin(ctx, repo, "delete"); err != nil {
				return err
			}
		}
		if _, err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
		}
		if err := s.revokeSessions(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionUserDelete,
		Actor:      actor,
		EntityType: enums.AuditEntityUser,
		EntityID:   id.String(),
		Details:    map[string]any{"email": deleted.Email, "role": string(deleted.Role)},
	})
	return nil
}

// revokeSessions runs inside the user transaction so a Redis failure rolls
// the change back and the admin can retry.
func (s *service) revokeSessions(ctx context.Context, id uuid.UUID) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.RevokeUser(ctx, id.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	return nil
}

// CreateUser validates, hashes and inserts a user inside its own transaction.
// Registration, admin creation and the startup bootstrap share it.
func CreateUser(ctx context.Context, runner txRunner, passwordCfg config.PasswordConfig, dto NewUser, password string) (*UserDTO, error) {
	dto.Email = NormalizeEmail(dto.Email)
	dto.FullName = strings.TrimSpace(dto.FullName)

	details := map[string]any{}
	if dto.FullName == "" {
		details["fullName"] = "required"
	}
	if dto.Email == "" || !strings.Contains(dto.Email, "@") {
		details["email"] = "must be a valid email"
	}
	if !dto.Role.IsValid() {
		details["role"] = "must be one of admin, doctor, customer"
	}
	if err := security.CheckStrength(password); err != nil {
		details["password"] = err.Error()
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user").WithDetails(details)
	}

	hash, err := security.HashPassword(password, passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	dto.PasswordHash = hash

	var created *UserDTO
	err = runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindByEmail(ctx, dto.Email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := repo.Create(ctx, dto)
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		created = FromModel(user)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func findUser(ctx context.Context, repo *Repository, id uuid.UUID) (*models.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func ensureNotLastAdmin(ctx context.Context, repo *Repository, verb string) error {
	admins, err := repo.CountByRole(ctx, enums.UserRoleAdmin)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count admins")
	}
	if admins <= 1 {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("cannot %s the last admin", verb))
	}
	return nil
}
