package store

import "errors"

// Sentinel errors for store operations. These are part of the Store's public
// API and should be checked with errors.Is().
//
// Example:
//
//	msgs, err := s.Messages(ctx, id)
//	if errors.Is(err, store.ErrNotFound) {
//	    // Handle missing conversation
//	}
var (
	// ErrNotFound indicates the requested conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidInput indicates a required field is empty or malformed.
	ErrInvalidInput = errors.New("invalid input")
)
