package auth

import (
	"context"
	"errors"

	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"gorm.io/gorm"
)

// BootstrapResult reports what EnsureAdmin did.
type BootstrapResult string

const (
	BootstrapSkipped  BootstrapResult = "skipped"
	BootstrapExisting BootstrapResult = "existing"
	BootstrapPromoted BootstrapResult = "promoted"
	BootstrapCreated  BootstrapResult = "created"
)

// AdminBootstrapParams names the dependencies for the startup admin seed.
type AdminBootstrapParams struct {
	DB             txRunner
	Bootstrap      config.BootstrapConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
}

// EnsureAdmin makes sure the configured administrator exists. An existing
// account with that email is promoted to admin; its password is left alone.
func EnsureAdmin(ctx context.Context, params AdminBootstrapParams) (BootstrapResult, error) {
	if params.DB == nil {
		return "", errors.New("database client required")
	}
	if !params.Bootstrap.Enabled() {
		return BootstrapSkipped, nil
	}
	email := users.NormalizeEmail(params.Bootstrap.AdminEmail)

	result := BootstrapExisting
	err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = BootstrapCreated
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check admin email")
		}
		if existing.Role == enums.UserRoleAdmin {
			return nil
		}
		if _, err := repo.Update(ctx, existing.ID, map[string]any{"role": enums.UserRoleAdmin}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "promote admin")
		}
		result = BootstrapPromoted
		return nil
	})
	if err != nil {
		return "", err
	}

	if result == BootstrapCreated {
		if _, err := users.CreateUser(ctx, params.DB, params.PasswordConfig, users.NewUser{
			FullName: params.Bootstrap.AdminName,
			Email:    email,
			Role:     enums.UserRoleAdmin,
		}, params.Bootstrap.AdminPassword); err != nil {
			return "", err
		}
	}

	if params.Logger != nil {
		params.Logger.Info(params.Logger.WithFields(ctx, map[string]any{
			"email":  email,
			"result": string(result),
		}), "admin bootstrap complete")
	}
	return result, nil
}
