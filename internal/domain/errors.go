// Package domain holds the chunk model shared by ingestion, storage and retrieval,
// and the error taxonomy every layer wraps its failures in.
package domain

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrValidation marks bad input rejected at the boundary, before any side effect.
	ErrValidation = errors.New("validation error")

	// ErrExtraction marks an unreadable or empty source document.
	ErrExtraction = errors.New("extraction error")

	// ErrCapability marks a failing embedding or generation backend.
	ErrCapability = errors.New("capability error")

	// ErrStore marks a connection, query or transaction failure in the chunk store.
	ErrStore = errors.New("store error")

	// ErrNotInitialized marks a component used before its dependencies were wired.
	ErrNotInitialized = errors.New("not initialized")
)

// Validationf returns an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Wrap classifies err under class with a short operation label.
// A nil err stays nil; an err already in class is only annotated.
func Wrap(class error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, class) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", class, op, err)
}
