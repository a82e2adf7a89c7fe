package controllers

import (
	"net/http"

	"github.com/bloodbank/bloodbank-backend/api/middleware"
	"github.com/bloodbank/bloodbank-backend/api/responses"
	"github.com/bloodbank/bloodbank-backend/api/validators"
	"github.com/bloodbank/bloodbank-backend/internal/issuance"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

type issueRequest struct {
	BloodType         string `json:"bloodType" validate:"required,bloodtype"`
	Units             int    `json:"units" validate:"required,min=1"`
	OriginalRequested string `json:"originalRequested,omitempty" validate:"omitempty,bloodtype"`
}

// Issue withdraws units of one type. A shortfall is answered with 409 and the
// ranked alternatives inside the success envelope.
func Issue(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}

		var body issueRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := issuance.IssueInput{
			Units: body.Units,
			Actor: middleware.ActorFromRequest(r),
		}
		input.BloodType, _ = enums.ParseBloodType(body.BloodType)
		if body.OriginalRequested != "" {
			original, _ := enums.ParseBloodType(body.OriginalRequested)
			input.OriginalRequested = &original
		}

		result, err := svc.Issue(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.NeedAlternative {
			responses.WriteSuccessStatus(w, http.StatusConflict, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Emergency drains all O- units. An empty stock is answered with 409.
func Emergency(svc issuance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "issuance service unavailable"))
			return
		}

		result, err := svc.EmergencyDrain(r.Context(), middleware.ActorFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Empty {
			responses.WriteSuccessStatus(w, http.StatusConflict, map[string]string{
				"reason":  result.Reason,
				"message": result.Message,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"issued": result.Issued,
			"type":   result.Type,
		})
	}
}
