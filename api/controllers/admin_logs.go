package controllers

import (
	"net/http"
	"strings"

	"github.com/bloodbank/bloodbank-backend/api/responses"
	"github.com/bloodbank/bloodbank-backend/api/validators"
	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

// AdminLogs lists audit entries filtered by action, actor email, entity type
// and date range.
func AdminLogs(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		filter, err := parseAuditFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{Actor: strings.TrimSpace(q.Get("actor"))}

	if raw := strings.TrimSpace(q.Get("action")); raw != "" {
		action, err := enums.ParseAuditAction(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action").WithDetails(map[string]any{"field": "action"})
		}
		filter.Action = action
	}
	if raw := strings.TrimSpace(q.Get("entityType")); raw != "" {
		entityType := enums.AuditEntityType(raw)
		if !entityType.IsValid() {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid entity type").WithDetails(map[string]any{"field": "entityType"})
		}
		filter.EntityType = entityType
	}

	var err error
	if filter.Since, err = validators.ParseQueryTime(r, "since", false); err != nil {
		return filter, err
	}
	if filter.Until, err = validators.ParseQueryTime(r, "until", true); err != nil {
		return filter, err
	}
	if filter.Page, filter.PageSize, err = parsePaging(r); err != nil {
		return filter, err
	}
	return filter, nil
}
