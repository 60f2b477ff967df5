package service

import "errors"

// Login and session errors. Handlers map these to HTTP status codes; every
// other error is an internal failure.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrAccountLocked           = errors.New("account locked")
	ErrAccountDisabled         = errors.New("account disabled")
	ErrSecondFactorRequired    = errors.New("second factor required")
	ErrInvalidSecondFactorCode = errors.New("invalid 2FA code")
	ErrSecondFactorEnabled     = errors.New("second factor already enabled")
	ErrSessionInvalid          = errors.New("session invalid")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrRateLimited             = errors.New("rate limited")
)
