package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/store"
)

// fakeStore is an in-memory ConversationStore mirroring the real store's
// error contract.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	conversations map[int64]*store.Conversation
	messages      map[int64][]store.Message

	// failWith, when set, makes every operation fail.
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:        1,
		conversations: make(map[int64]*store.Conversation),
		messages:      make(map[int64][]store.Message),
	}
}

func (f *fakeStore) CreateConversation(_ context.Context, name string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if name == "" {
		return nil, store.ErrInvalidInput
	}
	c := &store.Conversation{ID: f.nextID, Name: name, CreatedAt: time.Now()}
	f.nextID++
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeStore) Conversations(context.Context) ([]store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]store.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) Conversation(_ context.Context, id int64) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	c, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) DeleteConversation(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.conversations[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.conversations, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) CreateMessage(_ context.Context, conversationID int64, query, response string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if query == "" {
		return nil, store.ErrInvalidInput
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	m := store.Message{
		ID:             f.nextID,
		ConversationID: conversationID,
		Query:          query,
		Response:       response,
		CreatedAt:      time.Now(),
	}
	f.nextID++
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return &m, nil
}

func (f *fakeStore) Messages(_ context.Context, conversationID int64) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if _, ok := f.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}
	return append([]store.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeStore) LastMessages(_ context.Context, conversationID int64, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	msgs := f.messages[conversationID]
	if limit <= 0 {
		return nil, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]store.Message(nil), msgs...), nil
}

func (f *fakeStore) messageCount(conversationID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[conversationID])
}

// fakeCompleter returns a canned response or error, recording the inputs of
// the last call.
type fakeCompleter struct {
	mu       sync.Mutex
	response string
	err      error

	lastQuery   string
	lastHistory []llm.Exchange
	calls       int
}

func (f *fakeCompleter) Complete(_ context.Context, query string, history []llm.Exchange) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = query
	f.lastHistory = history
	if f.err != nil {
		return "", f.err
	}
	if f.response != "" {
		return f.response, nil
	}
	return fmt.Sprintf("echo: %s", query), nil
}
