package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors returned by ranking, compare and publish operations.
var (
	// ErrSessionActive indicates that a compare session is already started
	// or in progress for the (contest, grade).
	ErrSessionActive = errors.New("compare session already active")

	// ErrNoActiveSession indicates that no compare session is started or in
	// progress for the (contest, grade).
	ErrNoActiveSession = errors.New("no active compare session")

	// ErrSessionNotOpen indicates that the session exists but is not
	// accepting ballots.
	ErrSessionNotOpen = errors.New("compare session not open for voting")

	// ErrBallotsPending indicates that a normal confirm was attempted while
	// some seats have not voted.
	ErrBallotsPending = errors.New("ballots pending")

	// ErrDuplicateRanks indicates that two or more ranked competitors share
	// a rank and the caller did not force registration.
	ErrDuplicateRanks = errors.New("duplicate ranks")

	// ErrResultAlreadySaved indicates that a different result is already
	// published for the grade and must be cleared first.
	ErrResultAlreadySaved = errors.New("result already saved")

	// ErrUnknownSeat indicates a ballot from a seat not assigned to the grade.
	ErrUnknownSeat = errors.New("seat not assigned to grade")

	// ErrUnknownPlayer indicates a vote for a competitor outside the round.
	ErrUnknownPlayer = errors.New("player not in compare round")

	// ErrInvalidBallot indicates a structurally invalid ballot.
	ErrInvalidBallot = errors.New("invalid ballot")

	// ErrNoCompareRecord indicates that there is no confirmed round to roll back.
	ErrNoCompareRecord = errors.New("no compare record")

	// ErrSessionMismatch indicates that a rollback named a session other than
	// the one currently recorded as open.
	ErrSessionMismatch = errors.New("session id mismatch")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures. Fields lists the names of
// required inputs that were missing, in the order they were checked.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string

	// Fields contains the missing field names.
	Fields []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %s", e.Entity, strings.Join(e.Errors, "; "))
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddMissing records a missing required field.
func (e *ValidationError) AddMissing(field string) {
	e.Fields = append(e.Fields, field)
	e.Errors = append(e.Errors, "missing "+field)
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// StepError reports which step of a multi-step write sequence failed.
// Earlier steps have already been applied when it is returned; the caller
// must reconcile.
type StepError struct {
	// Operation is the sequence being executed, such as "confirm".
	Operation string

	// Step is the name of the failing step.
	Step string

	// Completed lists the steps applied before the failure.
	Completed []string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StepError.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at step %s (completed: %v): %v", e.Operation, e.Step, e.Completed, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error { return e.Err }

// NewStepError creates a new StepError.
func NewStepError(operation, step string, completed []string, err error) *StepError {
	return &StepError{
		Operation: operation,
		Step:      step,
		Completed: append([]string(nil), completed...),
		Err:       err,
	}
}
