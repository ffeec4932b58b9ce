// Package repository holds the MySQL data access code: the booking ledger
// and the showtime catalog.
package repository

import "errors"

// ErrConflict is returned when an insert collides with an existing row,
// such as a second booking for a hold that was already recorded.
var ErrConflict = errors.New("conflict")
