package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrVersionConflict indicates that a record changed between read and write.
var ErrVersionConflict = errors.New("record was modified concurrently")

// ErrInvalidState indicates an operation that is not allowed in the resource's current state.
var ErrInvalidState = errors.New("invalid state transition")

// ErrPrerequisite indicates that data required by an operation is missing.
var ErrPrerequisite = errors.New("prerequisite data missing")

// ErrUnavailable indicates that a dependency refused the call (open breaker, busy lock).
var ErrUnavailable = errors.New("service temporarily unavailable")

// ErrCalculationFailed indicates that an external calculation reported failure.
var ErrCalculationFailed = errors.New("calculation failed")

// ValidationError collects per-field validation messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
