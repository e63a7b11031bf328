package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionInactive  = errors.New("session is not active")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrSigningFailed    = errors.New("signing failed")
	ErrNotConnected     = errors.New("clearnode: not connected")
	ErrNotAuthenticated = errors.New("clearnode: not authenticated")
	ErrTimeout          = errors.New("request timed out")
	ErrClientClosed     = errors.New("client closed")
	ErrLockHeld         = errors.New("lock already held")
	ErrMissingKey       = errors.New("signing key not configured")
)
