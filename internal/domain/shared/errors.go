// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService = errors.New("external service error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "skill", "award", "suggestion"
	Op      string // Operation that failed, e.g., "Award", "Accept"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Skill domain errors
var (
	ErrSkillNotFound        = NewDomainError("skill", "Find", ErrNotFound, "skill not found")
	ErrSkillInactive        = NewDomainError("skill", "CheckStatus", ErrInvalidState, "skill is not active")
	ErrInvalidPointBounds   = NewDomainError("skill", "Validate", ErrValueOutOfRange, "points must satisfy min <= default <= max")
	ErrPointSignMismatch    = NewDomainError("skill", "Validate", ErrInvalidInput, "point sign must agree with skill polarity")
	ErrInvalidConfidence    = NewDomainError("skill", "Validate", ErrValueOutOfRange, "auto-suggest confidence must be between 0 and 1")
	ErrPointsOutOfBounds    = NewDomainError("skill", "ResolvePoints", ErrValueOutOfRange, "points outside skill bounds")
	ErrCustomSkillLimit     = NewDomainError("skill", "CreateCustom", ErrValueOutOfRange, "custom skill limit reached for classroom")
	ErrSkillNameRequired    = NewDomainError("skill", "Validate", ErrEmptyValue, "skill name is required")
	ErrSkillAlreadyExists   = NewDomainError("skill", "Create", ErrAlreadyExists, "skill already exists")
	ErrSkillScopeIncomplete = NewDomainError("skill", "Validate", ErrInvalidID, "custom skill requires school and classroom")
)

// Award domain errors
var (
	ErrAwardNotFound    = NewDomainError("award", "Find", ErrNotFound, "point award not found")
	ErrNoStudents       = NewDomainError("award", "Validate", ErrEmptyValue, "at least one student is required")
	ErrAwarderRequired  = NewDomainError("award", "Validate", ErrInvalidID, "awarding user is required")
	ErrNoStudentAwarded = NewDomainError("award", "Award", ErrNotFound, "none of the requested students could be resolved")
	ErrInvalidReaction  = NewDomainError("award", "React", ErrInvalidInput, "unsupported reaction")
)

// Scope errors
var (
	ErrTenantRequired    = NewDomainError("scope", "Validate", ErrInvalidID, "tenant ID is required")
	ErrSchoolRequired    = NewDomainError("scope", "Validate", ErrInvalidID, "school ID is required")
	ErrClassroomRequired = NewDomainError("scope", "Validate", ErrInvalidID, "classroom ID is required")
)

// Suggestion domain errors
var (
	ErrSuggestionNotFound   = NewDomainError("suggestion", "Find", ErrNotFound, "suggestion not found")
	ErrSuggestionNotPending = NewDomainError("suggestion", "Transition", ErrStateTransition, "suggestion is no longer pending")
	ErrSuggestionExpired    = NewDomainError("suggestion", "Accept", ErrExpired, "suggestion has expired")
	ErrObservationRequired  = NewDomainError("suggestion", "Generate", ErrEmptyValue, "observation text is required")
)

// Learner errors
var (
	ErrLearnerNotFound = NewDomainError("learner", "Find", ErrNotFound, "learner not found")
)

// Streak errors
var (
	ErrStreakNotFound = NewDomainError("streak", "Get", ErrNotFound, "streak not found")
)

// Celebration errors
var (
	ErrCelebrationExists = NewDomainError("celebration", "Create", ErrAlreadyExists, "celebration already recorded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStateConflict checks if the error is a state conflict: a transition attempted
// from a terminal state, an expired suggestion, or an inactive skill.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStateTransition) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService)
}
