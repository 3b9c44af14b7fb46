package session

import "errors"

var (
	// ErrNotFound means no session exists for the given code.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition means the requested state change is not allowed
	// from the session's current status. It is never coerced to success so
	// callers can detect races.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrCodeSpaceExhausted means repeated random draws kept colliding with
	// live codes. Treated as a configuration problem: increase the code
	// length or prune terminal sessions.
	ErrCodeSpaceExhausted = errors.New("code space exhausted")
)
