package errors

import "errors"

var (
	ErrNotFound = errors.New("completed parking not found")

	// ErrAlreadyArchived is returned when the session key was archived before.
	ErrAlreadyArchived = errors.New("parking session already archived")
)
