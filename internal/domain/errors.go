package domain

import "errors"

var (
	// ErrNotFound is returned by repositories and services when a tenant or
	// a synced record does not exist locally.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with an existing row.
	ErrConflict = errors.New("already exists")
)
