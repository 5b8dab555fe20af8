package db

import (
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a unique-constraint collision on a URI or
	// relationship. Callers may resolve the existing row instead of failing.
	ErrConflict = errors.New("conflict")
	// ErrAborted reports a cancelled or timed-out operation; callers may retry.
	ErrAborted = errors.New("aborted")
)

// DB is the repository the federation engine writes through. The concrete
// store is SQLite; only these contracts matter to callers.
type DB interface {
	Accounts
	URIs
	Statuses
	Relationships
}
