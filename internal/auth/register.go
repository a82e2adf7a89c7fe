package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"gorm.io/gorm"
)

// RegisterRequest contains the payload for self-service signup.
type RegisterRequest struct {
	FullName string         `json:"fullName" validate:"required"`
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required"`
	Role     enums.UserRole `json:"role,omitempty"`
	IP       string         `json:"-"`
}

// RegisterService handles account creation.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	DB                    txRunner
	PasswordConfig        config.PasswordConfig
	AllowPrivilegedSignup bool
	Recorder              audit.Recorder
}

type registerService struct {
	db                    txRunner
	passwordCfg           config.PasswordConfig
	allowPrivilegedSignup bool
	recorder              audit.Recorder
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = audit.Nop
	}
	return &registerService{
		db:                    params.DB,
		passwordCfg:           params.PasswordConfig,
		allowPrivilegedSignup: params.AllowPrivilegedSignup,
		recorder:              recorder,
	}, nil
}

func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	role := enums.UserRole(strings.ToLower(strings.TrimSpace(string(req.Role))))
	if role == "" {
		role = enums.UserRoleCustomer
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}
	if role != enums.UserRoleCustomer && !s.allowPrivilegedSignup {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "privileged roles cannot be self-assigned")
	}

	created, err := users.CreateUser(ctx, s.db, s.passwordCfg, users.NewUser{
		FullName: req.FullName,
		Email:    req.Email,
		Role:     role,
	}, req.Password)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionAuthRegister,
		Actor:      audit.Actor{ID: created.ID, Email: created.Email, Role: created.Role, IP: req.IP},
		EntityType: enums.AuditEntityUser,
		EntityID:   created.ID.String(),
		Details:    map[string]any{"role": string(created.Role)},
	})
	return created, nil
}
