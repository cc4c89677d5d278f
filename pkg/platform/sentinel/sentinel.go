package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger layer return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the ledger
// - ErrConflict: entity already exists or uniqueness was violated
// - ErrVersionConflict: optimistic-concurrency check failed at commit
// - ErrInvalidState: entity in wrong lifecycle state for requested operation
// - ErrAlreadyUsed: resource (listing, CUSIP) already consumed
// - ErrUnavailable: backing store temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrAlreadyUsed     = errors.New("already used")
	ErrUnavailable     = errors.New("unavailable")
)
