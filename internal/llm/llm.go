// Package llm connects the chat service to a language model provider.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the provider could not produce a completion.
// Callers translate it into an upstream failure, distinct from caller errors.
var ErrUnavailable = errors.New("completion provider unavailable")

// Exchange is a prior query/response pair supplied as conversation context.
type Exchange struct {
	Query    string
	Response string
}

// Completer produces a completion for a user query, optionally conditioned on
// earlier exchanges of the same conversation.
type Completer interface {
	Complete(ctx context.Context, query string, history []Exchange) (string, error)
}
