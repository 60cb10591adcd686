package domain

import "errors"

// Sentinel errors surfaced by the core. HTTP handlers and the Session state
// machine both dispatch on these via errors.Is, matching the error taxonomy
// the system is built around: config/bus/db/serialization/validation/auth/
// internal failures each map to a distinct HTTP status and a distinct
// in-session behavior.
var (
	ErrConfig         = errors.New("config error")
	ErrBus            = errors.New("bus error")
	ErrDb             = errors.New("db error")
	ErrSerialization  = errors.New("serialization error")
	ErrValidation     = errors.New("validation error")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrAuth           = errors.New("auth error")
	ErrLockHeld       = errors.New("lock already held")
	ErrNotFound       = errors.New("not found")
)
