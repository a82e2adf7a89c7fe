package controllers

import (
	"net/http"

	"github.com/bloodbank/bloodbank-backend/api/responses"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

type inventoryItem struct {
	BloodType enums.BloodType `json:"bloodType"`
	Units     int             `json:"units"`
}

// InventoryList returns the public per-type balances, ascending by type.
func InventoryList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		balances, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]inventoryItem, 0, len(balances))
		for _, b := range balances {
			items = append(items, inventoryItem{BloodType: b.BloodType, Units: b.Units})
		}
		responses.WriteSuccess(w, items)
	}
}

// InventorySummary includes the last update time of every row.
func InventorySummary(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		balances, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balances)
	}
}
