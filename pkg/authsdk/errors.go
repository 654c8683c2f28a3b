package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// ============================================================================
// Error Codes
// ============================================================================

const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeValidationFailed    = "validation_failed"
	ErrorCodeWeakCredential      = "weak_credential"
	ErrorCodeDuplicateIdentifier = "duplicate_identifier"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeRateLimited         = "rate_limited"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeServerError         = "server_error"
	ErrorCodeUnavailable         = "temporarily_unavailable"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the error envelope returned by every endpoint. It is written
// by the server and decoded back into the same type by the client.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is a stable machine readable code (e.g. "invalid_token")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// Fields holds per-field validation messages, when any
	Fields map[string]string `json:"fields,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes the envelope with the error's status code. Invalid
// token errors also carry a WWW-Authenticate challenge.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.Code == ErrorCodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithFields returns a copy of e carrying field-level messages.
func (e *APIError) WithFields(fields map[string]string) *APIError {
	c := *e
	c.Fields = fields
	return &c
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrInvalidRequest is returned when the body cannot be decoded.
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request body is malformed",
	}

	// ErrValidationFailed is returned when the body decodes but fails input rules.
	ErrValidationFailed = &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeValidationFailed,
		Description: "the request failed validation",
	}

	// ErrWeakCredential is returned when a password is rejected by policy.
	ErrWeakCredential = &APIError{
		StatusCode:  http.StatusUnprocessableEntity,
		Code:        ErrorCodeWeakCredential,
		Description: "the password does not meet the password policy",
	}

	// ErrDuplicateIdentifier is returned on registration of a taken identifier.
	ErrDuplicateIdentifier = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeDuplicateIdentifier,
		Description: "the identifier is already registered",
	}

	// ErrInvalidCredentials is the single login failure, whatever the cause.
	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}

	// ErrInvalidToken is returned when the bearer token is missing,
	// malformed, tampered with, expired or revoked.
	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	// ErrNotFound is returned for unknown routes.
	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	// ErrServerError is returned when the service hit an unexpected condition.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	// ErrUnavailable is returned when a dependency needed to issue a token
	// cannot be reached. Retrying later may succeed.
	ErrUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeUnavailable,
		Description: "the service is temporarily unavailable",
	}
)

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns a non-2xx response body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
