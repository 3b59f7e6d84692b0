package store

import "errors"

var (
	// ErrConflict means the (date, time) slot is already taken.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)
