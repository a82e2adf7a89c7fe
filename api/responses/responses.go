package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes data in the success envelope. Refused outcomes
// that are not errors (a shortfall, an empty emergency stock) go out as 409
// through here so clients read them as data.
func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	send(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as an error envelope and logs it. A 5xx logs at
// error level, anything lower at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := classify(err)
	status, body := publicBody(typed)
	if logg != nil {
		report(ctx, logg, status, err)
	}
	send(w, status, ErrorEnvelope{Error: body})
}

// classify treats anything untyped as an internal error.
func classify(err error) *pkgerrors.Error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
}

// publicBody keeps internal text out of responses unless the code allows it.
func publicBody(typed *pkgerrors.Error) (int, ErrorBody) {
	meta := pkgerrors.MetadataFor(typed.Code())
	body := ErrorBody{Code: string(typed.Code()), Message: meta.PublicMessage}
	if msg := typed.Message(); meta.ExposeMessage && msg != "" {
		body.Message = msg
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	return meta.HTTPStatus, body
}

func report(ctx context.Context, logg *logger.Logger, status int, err error) {
	dump := pkgerrors.Dump(err)
	ctx = logg.WithFields(ctx, map[string]any{
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"http_status": status,
		"retryable":   pkgerrors.Retryable(err),
	})
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithField(ctx, "error", dump.TopMessage), "request.rejected")
}

func send(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// headers are out; an encode failure only means the client left
	_ = json.NewEncoder(w).Encode(payload)
}
