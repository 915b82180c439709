package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the normal negative result of a search.
	ErrNotFound = errors.New("record not found")

	// ErrCorruptIndex is returned when an index file does not have the shape its
	// header or its key length demands.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrSchemaMismatch is returned when an index was built with a different key length.
	ErrSchemaMismatch = errors.New("index key length mismatch")

	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrBadOffset is returned when an offset does not point inside the data file.
	ErrBadOffset = errors.New("offset outside data file")

	// ErrLocked is returned when another build holds the index lock.
	ErrLocked = errors.New("index is locked by another build")

	ErrVerificationFailed = errors.New("index verification failed")
)

// ValidationError is a custom error type for bad option values.
type ValidationError struct {
	Message string
	Field   string // e.g., "strategy", "format", "search_mode"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// SchemaMismatchError carries both key lengths of a failed open. It matches
// ErrSchemaMismatch with errors.Is.
type SchemaMismatchError struct {
	Path   string
	Stored int
	Wanted int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s: index %s has key length %d, caller expects %d", ErrSchemaMismatch, e.Path, e.Stored, e.Wanted)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}
