package controllers

import (
	"net/http"
	"time"

	"github.com/bloodbank/bloodbank-backend/api/middleware"
	"github.com/bloodbank/bloodbank-backend/api/responses"
	"github.com/bloodbank/bloodbank-backend/api/validators"
	"github.com/bloodbank/bloodbank-backend/internal/donations"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/pagination"
)

type createDonationRequest struct {
	DonorID   string    `json:"donorId" validate:"required,max=64"`
	DonorName string    `json:"donorName" validate:"required,max=120"`
	BloodType string    `json:"bloodType" validate:"required,bloodtype"`
	DonatedAt time.Time `json:"donatedAt" validate:"required"`
}

// DonationCreate records one donated unit and credits the ledger.
func DonationCreate(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		var body createDonationRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bloodType, _ := enums.ParseBloodType(body.BloodType)

		donation, err := svc.Create(r.Context(), donations.CreateInput{
			DonorID:   body.DonorID,
			DonorName: body.DonorName,
			BloodType: bloodType,
			DonatedAt: body.DonatedAt,
			Actor:     middleware.ActorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, donation)
	}
}

func DonationList(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		bloodType, err := validators.ParseQueryBloodType(r, "bloodType")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, pageSize, err := parsePaging(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), donations.ListParams{
			BloodType: bloodType,
			Page:      page,
			PageSize:  pageSize,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parsePaging(r *http.Request) (int, int, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 1_000_000)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := validators.ParseQueryInt(r, "pageSize", pagination.DefaultPageSize, 1, pagination.MaxPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}
