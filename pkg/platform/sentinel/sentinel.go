package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrExpired: token or record outlived its TTL
//   - ErrAlreadyUsed: single-use resource was already consumed
//   - ErrUnavailable: backing store temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
