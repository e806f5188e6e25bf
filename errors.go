package nocode

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("nocode: no store configured")
	ErrMigrationFailed = errors.New("nocode: migration failed")

	// Not found errors.
	ErrJobNotFound    = errors.New("nocode: job not found")
	ErrRecordNotFound = errors.New("nocode: result record not found")

	// Conflict errors.
	ErrJobAlreadyExists    = errors.New("nocode: job already exists")
	ErrRecordAlreadyExists = errors.New("nocode: result record already exists")

	// State errors.
	ErrInvalidState = errors.New("nocode: invalid state transition")

	// Type errors.
	ErrUnknownJobType = errors.New("nocode: unknown job type")
)
