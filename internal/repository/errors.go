// Package repository defines error types that are reused across the
// reservation and capacity queries.  These sentinel values allow higher
// layers such as the service to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when no reservation matches the requested id.
var ErrNotFound = errors.New("not found")

// ErrStatusChanged is returned by the compare-and-set updates when the
// row no longer holds the expected status.  Another writer won the race.
var ErrStatusChanged = errors.New("status changed concurrently")

// ErrConflict is returned when an insert collides with an existing row,
// such as a duplicated reservation id.
var ErrConflict = errors.New("conflict")
