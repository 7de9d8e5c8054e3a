package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a write collides with a unique key, such as a
	// duplicate email or a second active session for the same user.
	ErrConflict = errors.New("persistence: conflict")
	// ErrConstraintViolation is returned for check and foreign key failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
