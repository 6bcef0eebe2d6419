// Package common defines shared constants and sentinel errors used across
// client and server layers of tokenkeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal         = errors.New("internal error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrValidation         = errors.New("validation error")
	ErrForbidden          = errors.New("forbidden")

	// Authentication outcomes.
	ErrDuplicateUsername            = errors.New("username already exists")
	ErrInvalidCredentials           = errors.New("invalid credentials")
	ErrInvalidOrExpiredRefreshToken = errors.New("invalid or expired refresh token")

	// Access token errors.
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
)
