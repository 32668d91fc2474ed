/*
errors.go - Centralized error taxonomy for the settlement core

PURPOSE:
  Every failure the core reports falls into one of four categories. Callers
  branch on category with errors.Is / the helpers below; the HTTP layer maps
  categories to status codes (404/409/400/403).

ERROR CATEGORIES:
  NotFound    referenced worker/task/day/run does not exist
  Conflict    day closed, task already paid, or a settlement claim lost a race
  Validation  negative quantity, malformed period inputs
  Forbidden   role/scope predicate failed

  No automatic retry happens inside the core. Retrying a payroll run is safe
  only because of the insert-if-absent run items and the conditional payment
  claim, not because of anything here.

USAGE:
    if engine.IsConflict(err) {
        // surface as 409
    }

SEE ALSO:
  - approval/: raises Conflict for closed days and paid tasks
  - settlement/: treats a lost claim race as Conflict for that task
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation contradicts settled state:
	// the owning day is closed, the task is already paid, or a concurrent
	// settlement claimed the row first.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input (negative quantity,
	// unknown frequency, zero-value dates).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden is returned when the actor's role or scope does not
	// permit the operation.
	ErrForbidden = errors.New("forbidden")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string // "worker", "task", "work day", "payroll run", "task type"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DayClosedError is raised for any mutation against a closed work day.
type DayClosedError struct {
	WorkDayID string
}

func (e *DayClosedError) Error() string {
	return fmt.Sprintf("work day %s is closed", e.WorkDayID)
}

func (e *DayClosedError) Unwrap() error { return ErrConflict }

// TaskPaidError is raised when a decision targets a task a payroll run has
// already claimed. Settlement is terminal for the task.
type TaskPaidError struct {
	TaskID    string
	PaidRunID string
}

func (e *TaskPaidError) Error() string {
	return fmt.Sprintf("task %s already paid by run %s", e.TaskID, e.PaidRunID)
}

func (e *TaskPaidError) Unwrap() error { return ErrConflict }

// ValidationError reports a specific malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }
