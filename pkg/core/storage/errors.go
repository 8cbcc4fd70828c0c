package storage

import "errors"

var (
	// ErrNotFound is returned when a record lookup matches nothing
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when saving a record whose id already exists
	ErrDuplicate = errors.New("record already exists")
)
