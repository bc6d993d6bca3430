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
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Store errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrStore                  = errors.New("store operation failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "profile", "companion", "chat"
	Op      string // Operation that failed, e.g., "Create", "Append"
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

// StoreError wraps a backend failure. The message is safe to show to clients;
// the cause is kept for logs.
func StoreError(domain, op string, err error) *DomainError {
	return WrapError(domain, op, ErrStore, "storage unavailable", err)
}

// Profile domain errors
var (
	ErrProfileNotFound      = NewDomainError("profile", "Find", ErrNotFound, "profile not found")
	ErrProfileAlreadyExists = NewDomainError("profile", "Create", ErrAlreadyExists, "profile already exists")
	ErrInvalidRole          = NewDomainError("profile", "Validate", ErrInvalidInput, "role must be STUDENT or MENTOR")
	ErrInvalidFocusArea     = NewDomainError("profile", "Validate", ErrInvalidInput, "unknown focus area")
	ErrNoFocusSelected      = NewDomainError("profile", "ConfirmFocus", ErrValidation, "select at least one focus area")
	ErrNotAMentor           = NewDomainError("profile", "CheckRole", ErrForbidden, "profile is not a mentor")
	ErrNotAStudent          = NewDomainError("profile", "CheckRole", ErrForbidden, "profile is not a student")
	ErrInvalidAvailability  = NewDomainError("profile", "Validate", ErrInvalidInput, "unknown availability")
)

// Companion domain errors
var (
	ErrCompanionNotFound  = NewDomainError("companion", "Find", ErrNotFound, "companion not found")
	ErrInvalidSpecies     = NewDomainError("companion", "Validate", ErrInvalidInput, "unknown companion species")
	ErrSpeciesUnavailable = NewDomainError("companion", "Select", ErrInvalidInput, "companion species is not selectable")
	ErrNoCompanion        = NewDomainError("companion", "Find", ErrNotFound, "no companion selected")
)

// Economy domain errors
var (
	ErrUnknownShopItem = NewDomainError("economy", "Find", ErrNotFound, "unknown shop item")
)

// Chat domain errors
var (
	ErrInvalidConversation = NewDomainError("chat", "NewConversation", ErrInvalidID, "invalid conversation participants")
	ErrNotParticipant      = NewDomainError("chat", "Send", ErrForbidden, "sender is not a participant")
	ErrEmptyMessage        = NewDomainError("chat", "Send", ErrEmptyValue, "message text is empty")
	ErrMessageTooLong      = NewDomainError("chat", "Send", ErrValueOutOfRange, "message text is too long")
	ErrNotPaired           = NewDomainError("chat", "Open", ErrForbidden, "users are not paired")
)

// Wellness domain errors
var (
	ErrLessonNotFound     = NewDomainError("wellness", "FindLesson", ErrNotFound, "lesson not found")
	ErrAttemptNotFound    = NewDomainError("wellness", "FindAttempt", ErrNotFound, "lesson attempt not found")
	ErrIncompleteCheckin  = NewDomainError("wellness", "SubmitCheckin", ErrValidation, "all check-in questions must be answered")
	ErrInvalidAnswer      = NewDomainError("wellness", "SubmitCheckin", ErrInvalidInput, "answer is not one of the options")
	ErrGrantAlreadyExists = NewDomainError("wellness", "Grant", ErrAlreadyProcessed, "reward already granted")
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
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsForbidden checks if the caller may not perform the operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsStore checks if the error came from a storage backend.
func IsStore(err error) bool {
	return errors.Is(err, ErrStore) || errors.Is(err, ErrServiceUnavailable)
}
