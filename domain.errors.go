package main

import (
	"errors"
	"fmt"
)

var (
	ErrBookNotFound   = errors.New("book not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrConflict       = errors.New("conflict")

	ErrDuplicateTitleAuthor = fmt.Errorf("%w: book with same title and author already exists", ErrConflict)
	ErrDuplicateISBN        = fmt.Errorf("%w: book with same isbn already exists", ErrConflict)
)

type (
	missingFieldError string
	invalidFieldError struct {
		field  string
		reason string
	}
)

func (m missingFieldError) Error() string {
	return string(m) + " is required"
}

// Is makes missing fields errors match ErrInvalidRequest.
func (m missingFieldError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e invalidFieldError) Error() string {
	return e.field + " " + e.reason
}

// Is makes invalid fields errors match ErrInvalidRequest.
func (e invalidFieldError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// NewInvalidFieldError returns an error matching ErrInvalidRequest.
func NewInvalidFieldError(field, reason string) error {
	return invalidFieldError{field: field, reason: reason}
}
