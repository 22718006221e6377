package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and collaborator adapters
// return these (optionally wrapped) so services can translate them into
// domain error codes.
//
//   - ErrNotFound: key or record does not exist
//   - ErrConflict: optimistic version check failed, or a unique key is taken
//   - ErrLocked: another caller holds the per-session lock
//   - ErrExpired: session or token is past its expiry
//   - ErrAlreadyUsed: single-use value was already consumed
//   - ErrInvalidState: record is in the wrong state for the operation
//   - ErrUnavailable: backing service unreachable or failing
//
// For validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrLocked       = errors.New("locked")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
