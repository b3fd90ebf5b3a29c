package storage

import "errors"

// Sentinel errors shared by every backend. Backends wrap driver errors so
// callers can match with errors.Is regardless of where records live.
var (
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey means the key is already taken. Candidate, gate and
	// score records are write-once; positions only change through Update.
	ErrDuplicateKey = errors.New("duplicate key")

	ErrInvalidInput = errors.New("invalid record")
)
