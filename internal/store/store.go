package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// messageCols is the standard SELECT column list for scanning messages.
const messageCols = `id, conversation_id, query, response, created_at`

// Store manages conversations and messages in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines. Each operation is
// atomic: conversation deletion removes its messages in the same statement
// (ON DELETE CASCADE), and message listing checks existence and reads rows in
// one transaction, so a racing delete is observed either entirely or not at
// all.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store on the given connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// CreateConversation persists a new conversation and returns the full record.
// Returns ErrInvalidInput if name is empty or blank.
func (s *Store) CreateConversation(ctx context.Context, name string) (*Conversation, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	var c Conversation
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (name) VALUES ($1) RETURNING id, name, created_at`,
		name,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", c.ID, "name", c.Name)
	return &c, nil
}

// Conversations returns all conversations ordered by id ascending.
func (s *Store) Conversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at FROM conversations ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	conversations, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Conversation])
	if err != nil {
		return nil, fmt.Errorf("scanning conversations: %w", err)
	}

	s.logger.Debug("listed conversations", "count", len(conversations))
	return conversations, nil
}

// Conversation returns a single conversation by id.
// Returns ErrNotFound if no such conversation exists.
func (s *Store) Conversation(ctx context.Context, id int64) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %d: %w", id, err)
	}

	return &c, nil
}

// DeleteConversation deletes a conversation and all its messages.
// The cascade runs inside the single DELETE statement, so no partial state is
// ever observable. Returns ErrNotFound if the id does not exist, including on
// repeated deletes.
func (s *Store) DeleteConversation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// CreateMessage persists a query/response pair as a single message.
// Returns ErrInvalidInput if query is empty or blank, and ErrNotFound if the
// conversation does not exist (reported by the foreign key, so a conversation
// deleted concurrently can never gain a message).
func (s *Store) CreateMessage(ctx context.Context, conversationID int64, query, response string) (*Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}

	var m Message
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, query, response)
		 VALUES ($1, $2, $3)
		 RETURNING `+messageCols,
		conversationID, query, response,
	).Scan(&m.ID, &m.ConversationID, &m.Query, &m.Response, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
		}
		return nil, fmt.Errorf("creating message: %w", err)
	}

	s.logger.Debug("created message", "id", m.ID, "conversation_id", m.ConversationID)
	return &m, nil
}

// Messages returns all messages of a conversation ordered by id ascending.
// Returns ErrNotFound if the conversation does not exist; a conversation with
// zero messages yields an empty slice.
//
// The rows are read before the existence check. A non-empty read proves the
// conversation existed at the read snapshot (the cascade removes messages
// with their conversation, so they never outlive it). An empty read is
// verified afterwards: ids are never reused, so a conversation deleted with
// messages cannot pass that check, and a racing DeleteConversation resolves
// to either the pre-delete rows or ErrNotFound, never an empty view.
func (s *Store) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	messages, err := s.messagesIn(ctx, s.pool, conversationID)
	if err != nil {
		return nil, err
	}

	if len(messages) == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`,
			conversationID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking conversation %d: %w", conversationID, err)
		}
		if !exists {
			return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
		}
	}

	s.logger.Debug("listed messages", "conversation_id", conversationID, "count", len(messages))
	return messages, nil
}

// LastMessages returns up to limit most recent messages of a conversation in
// creation order (oldest of the window first). Used to build provider context
// for a new completion. Does not distinguish a missing conversation from an
// empty one; callers needing that distinction use Messages.
func (s *Store) LastMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM (
		     SELECT `+messageCols+` FROM messages
		     WHERE conversation_id = $1
		     ORDER BY id DESC
		     LIMIT $2
		 ) recent ORDER BY id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, fmt.Errorf("scanning recent messages: %w", err)
	}
	return messages, nil
}

// messagesIn reads all messages of a conversation via the given querier.
func (s *Store) messagesIn(ctx context.Context, q querier, conversationID int64) ([]Message, error) {
	rows, err := q.Query(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = $1 ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
	if err != nil {
		return nil, fmt.Errorf("scanning messages: %w", err)
	}
	return messages, nil
}
