package http

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// writeServiceError maps a lifecycle error onto the response envelope.
// Every token failure is the same 401 so callers learn nothing about why.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, service.ErrDuplicateIdentifier):
		authsdk.ErrDuplicateIdentifier.WriteError(w)
	case errors.Is(err, service.ErrWeakCredential):
		authsdk.ErrWeakCredential.WithDescription(reason(err, service.ErrWeakCredential)).WriteError(w)
	case errors.Is(err, service.ErrValidation):
		authsdk.ErrValidationFailed.WithDescription(reason(err, service.ErrValidation)).WriteError(w)
	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.ErrInvalidCredentials.WriteError(w)
	case errors.Is(err, service.ErrLedgerUnavailable):
		log.Error("revocation ledger unavailable", "error", err)
		authsdk.ErrInvalidToken.WriteError(w)
	case service.IsUnauthenticated(err):
		log.Debug("token rejected", "reason", err)
		authsdk.ErrInvalidToken.WriteError(w)
	default:
		log.Error("request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

// reason strips the sentinel prefix from a wrapped error message.
func reason(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

// writeValidationError reports ozzo field errors as a 422 with per-field
// messages.
func writeValidationError(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		authsdk.ErrValidationFailed.WriteError(w)
		return
	}

	fields := make(map[string]string, len(fieldErrs))
	for name, fe := range fieldErrs {
		fields[name] = fe.Error()
	}
	authsdk.ErrValidationFailed.WithFields(fields).WriteError(w)
}
