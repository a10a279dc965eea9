package sentinel

import "errors"

// Sentinel errors describe facts about stored resources. Stores return them,
// optionally wrapped, and services translate them into coded domain errors.
//
//   - ErrNotFound: no resource with the requested key
//   - ErrAlreadyUsed: a unique name is already taken in its namespace
//   - ErrInvalidState: the resource is in the wrong state for the operation
//   - ErrReferenced: a referenced parent resource does not exist
//   - ErrUnavailable: the backing store cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrReferenced   = errors.New("missing reference")
	ErrUnavailable  = errors.New("unavailable")
)
