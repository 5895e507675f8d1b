// Package storage provides the storage abstraction for per-session flag
// collections.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidSession is returned when a session identifier is empty.
var ErrInvalidSession = errors.New("invalid session id")

// Repository stores, per session, an ordered set of registered flags.
type Repository interface {
	// Add appends flag to the session's flags unless it is already present
	// and reports whether it was added. The membership check and the append
	// happen atomically.
	Add(ctx context.Context, sessionID, flag string) (bool, error)
	// List returns the session's flags in registration order. An unknown
	// session yields an empty list.
	List(ctx context.Context, sessionID string) ([]string, error)
	// Delete discards everything stored for the session. Deleting an
	// unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// Purger is implemented by backends that do not expire idle sessions on
// their own.
type Purger interface {
	// Purge removes sessions not accessed since idleBefore and returns how
	// many were removed.
	Purge(ctx context.Context, idleBefore time.Time) (int, error)
}

// CheckSessionID validates a session identifier before it reaches a backend.
func CheckSessionID(sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}
	return nil
}
