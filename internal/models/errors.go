package models

import "errors"

// Sentinel errors for the caller-visible failure taxonomy. Services wrap
// these with fmt.Errorf("...: %w", ...) and handlers map them to HTTP status
// codes with errors.Is.
var (
	// ErrNotFound means the referenced check, squad, event or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is not authorized for the operation
	// (not the check author, not a squad member).
	ErrForbidden = errors.New("forbidden")

	// ErrConflict covers state conflicts: deleting a check a squad still
	// references, locking a date in the past, clearing a date on a squad
	// with no linked check.
	ErrConflict = errors.New("conflict")

	// ErrSquadFull means a join would exceed the check's max squad size.
	ErrSquadFull = errors.New("squad is full")

	// ErrCapacityExceeded means a formation selection exceeds
	// max_squad_size - 1 additional members.
	ErrCapacityExceeded = errors.New("selection exceeds squad capacity")

	// ErrAlreadyExists is the store-contract signal for a uniqueness
	// violation (duplicate squad for a check, duplicate membership). It is
	// swallowed by services wherever the contract demands idempotency and
	// must never reach a caller.
	ErrAlreadyExists = errors.New("already exists")
)
