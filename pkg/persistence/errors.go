package persistence

import "errors"

var (
	// ErrNotFound is returned when no current row exists for a lookup.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting a file that already has
	// a current row.
	ErrAlreadyExists = errors.New("already exists")
)
