// Package common defines shared constants and sentinel errors used across
// the rideauth server and client. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)

// Auth outcomes. Each rejected auth request ends with exactly one of these;
// the texts are stable and double as client-facing messages.
var (
	ErrInvalidPhone             = errors.New("Invalid phone number")
	ErrDeliveryFailed           = errors.New("Error sending sms to phone")
	ErrNoVerificationInProgress = errors.New("Verification code doesn't exists")
	ErrWrongCode                = errors.New("Verification code is wrong")
	ErrPhoneTaken               = errors.New("User with this phone already exists")
	ErrUsernameTaken            = errors.New("User with this username already exists")
	ErrUserNotFound             = errors.New("User does not exist")
	ErrWrongCredentials         = errors.New("incorrect username or password")
	ErrMalformedTokenPair       = errors.New("WRONG_TOKEN_PAIR")
	ErrRefreshRevoked           = errors.New("REFRESH_TOKEN_IS_REVOKED")
	ErrUserGone                 = errors.New("User no longer exists")
)
