package repository

import "errors"

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("repository: duplicate record")

// ErrMissingReference is returned when an insert points at a row that does not exist.
var ErrMissingReference = errors.New("repository: referenced record not found")
