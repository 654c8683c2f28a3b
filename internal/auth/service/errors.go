package service

import "errors"

var (
	ErrDuplicateIdentifier = errors.New("duplicate_identifier")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrValidation          = errors.New("validation_failed")
	ErrWeakCredential      = errors.New("weak_credential")

	// Token failures. All of them are surfaced as a uniform 401.
	ErrMalformed        = errors.New("malformed_token")
	ErrSignatureInvalid = errors.New("signature_invalid")
	ErrExpired          = errors.New("token_expired")
	ErrRevoked          = errors.New("token_revoked")

	// ErrLedgerUnavailable means the revocation ledger could not be reached.
	// Verification fails closed on it.
	ErrLedgerUnavailable = errors.New("ledger_unavailable")
)

// IsUnauthenticated reports whether err means the presented token must be
// rejected.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrLedgerUnavailable)
}
