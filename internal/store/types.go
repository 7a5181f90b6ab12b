// Package store provides conversation and message persistence backed by
// PostgreSQL.
//
// Every message belongs to exactly one conversation, and deleting a
// conversation removes its messages atomically.
package store

import "time"

// Conversation is a named container for an ordered sequence of messages.
type Conversation struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one query/response pair belonging to exactly one conversation.
// All fields are immutable after creation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Query          string    `json:"query"`
	Response       string    `json:"response"`
	CreatedAt      time.Time `json:"created_at"`
}
