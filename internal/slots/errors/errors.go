package errors

import "errors"

var (
	ErrNotFound = errors.New("parking slot not found")

	// ErrConflict means the slot changed between read and conditional update.
	ErrConflict = errors.New("parking slot was modified concurrently")

	// ErrHolderTaken means the user already holds another slot.
	ErrHolderTaken = errors.New("user already holds a parking slot")
)
