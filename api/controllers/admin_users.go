package controllers

import (
	"net/http"
	"strings"

	"github.com/bloodbank/bloodbank-backend/api/middleware"
	"github.com/bloodbank/bloodbank-backend/api/responses"
	"github.com/bloodbank/bloodbank-backend/api/validators"
	"github.com/bloodbank/bloodbank-backend/internal/users"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type adminCreateUserRequest struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role,omitempty" validate:"omitempty,userrole"`
}

type adminUpdateUserRequest struct {
	FullName *string `json:"fullName,omitempty" validate:"omitempty,max=120"`
	Role     *string `json:"role,omitempty" validate:"omitempty,userrole"`
	Password *string `json:"password,omitempty"`
}

func AdminUsersList(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		role, err := validators.ParseQueryRole(r, "role")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, pageSize, err := parsePaging(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), users.ListInput{
			Query:    strings.TrimSpace(r.URL.Query().Get("q")),
			Role:     role,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminUsersCreate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		var body adminCreateUserRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := users.CreateInput{
			FullName: body.FullName,
			Email:    body.Email,
			Password: body.Password,
			Actor:    middleware.ActorFromRequest(r),
		}
		if body.Role != "" {
			input.Role, _ = enums.ParseUserRole(body.Role)
		}

		user, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, user)
	}
}

func AdminUsersUpdate(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		id, err := userIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adminUpdateUserRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := users.UpdateInput{
			FullName: body.FullName,
			Password: body.Password,
			Actor:    middleware.ActorFromRequest(r),
		}
		if body.Role != nil {
			role, _ := enums.ParseUserRole(*body.Role)
			input.Role = &role
		}

		user, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

func AdminUsersDelete(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		id, err := userIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), id, middleware.ActorFromRequest(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted", "id": id.String()})
	}
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "userId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id").WithDetails(map[string]any{"field": "userId"})
	}
	return id, nil
}
