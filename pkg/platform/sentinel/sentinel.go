// Package sentinel holds infrastructure errors. Stores return them wrapped;
// the ledger service translates them into domain error codes.
package sentinel

import "errors"

var (
	// ErrNotFound means a row the store relies on is missing.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable means the backing system could not be reached.
	ErrUnavailable = errors.New("unavailable")
	// ErrCorrupt means persisted state could not be decoded.
	ErrCorrupt = errors.New("corrupt")
)
