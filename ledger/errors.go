/*
errors.go - Centralized error taxonomy for the petty-cash core

PURPOSE:
  All error kinds in one place so callers can distinguish them with
  errors.Is/errors.As. The API layer maps each kind to an HTTP status.

ERROR CATEGORIES:
  1. Validation errors  - malformed amount, missing required field,
                          missing rejection comment
  2. Permission errors  - role insufficient for the requested action
  3. Not found          - unknown entity id
  4. Already decided    - transition attempted on a terminal entity
  5. Persistence        - store unavailable or constraint violation

Validation and permission errors are detected before any mutation.
No error is swallowed or retried here; retries belong to the caller.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrPermissionDenied is returned when the actor's role may not
	// perform the requested action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned for an unknown entity id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDecided is returned when transitioning an entity that
	// is no longer pending. The stored entity is unchanged.
	ErrAlreadyDecided = errors.New("already decided")

	// ErrPersistence wraps store-level failures. An append that fails
	// with it has written nothing.
	ErrPersistence = errors.New("persistence failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError reports the role and the action it was denied.
type PermissionError struct {
	Role   Role
	Action Action
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("role %q may not %s", e.Role, e.Action)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// AlreadyDecidedError reports the terminal status the entity is in.
type AlreadyDecidedError struct {
	ID     string
	Status Status
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("entity %s already %s", e.ID, e.Status)
}

func (e *AlreadyDecidedError) Unwrap() error { return ErrAlreadyDecided }

// NotFoundError reports the missing entity.
type NotFoundError struct {
	Kind string // "transaction" or "replenishment request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to bad client input
// or state, as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyDecided)
}
