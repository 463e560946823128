package domain

import "errors"

var (
	// ErrNotFound covers both a missing record and one owned by someone else.
	ErrNotFound = errors.New("link not found")

	ErrCodeConflict            = errors.New("short code already in use")
	ErrValidation              = errors.New("validation failed")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique short code")
)
