package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/parleyhq/parley/internal/log"
	"github.com/parleyhq/parley/internal/store"
)

// MaxNameLength bounds conversation names accepted over the API.
const MaxNameLength = 200

// ConversationStore is the persistence surface the handlers need. *store.Store
// satisfies it; tests supply fakes.
type ConversationStore interface {
	CreateConversation(ctx context.Context, name string) (*store.Conversation, error)
	Conversations(ctx context.Context) ([]store.Conversation, error)
	Conversation(ctx context.Context, id int64) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	CreateMessage(ctx context.Context, conversationID int64, query, response string) (*store.Message, error)
	Messages(ctx context.Context, conversationID int64) ([]store.Message, error)
	LastMessages(ctx context.Context, conversationID int64, limit int) ([]store.Message, error)
}

// ConversationResponse is the wire shape of a conversation. Storage-side
// fields stay out of the API contract.
type ConversationResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func toConversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{ID: c.ID, Name: c.Name}
}

// ConversationHandler handles conversation CRUD endpoints.
type ConversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(cs ConversationStore, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: cs, logger: logger}
}

// RegisterRoutes registers conversation routes on the given mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /conversations", h.list)
	mux.HandleFunc("POST /conversation", h.create)
	mux.HandleFunc("DELETE /conversation/{id}", h.delete)
}

// list returns all conversations ordered by id.
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.Conversations(r.Context())
	if err != nil {
		h.logger.Error("failed to list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list conversations")
		return
	}

	out := make([]ConversationResponse, 0, len(conversations))
	for i := range conversations {
		out = append(out, toConversationResponse(&conversations[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateConversationRequest is the request body for creating a conversation.
type CreateConversationRequest struct {
	Name string `json:"name"`
}

// create creates a new conversation.
func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Name) > MaxNameLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "name too long (max 200 characters)")
		return
	}

	conv, err := h.store.CreateConversation(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "invalid_request", "name must not be empty")
			return
		}
		h.logger.Error("failed to create conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, toConversationResponse(conv))
}

// delete removes a conversation and all its messages.
func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("failed to delete conversation", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path segment. A non-numeric or non-positive id can
// never name a stored conversation, so it reports not found rather than a
// client error.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return 0, false
	}
	return id, true
}
