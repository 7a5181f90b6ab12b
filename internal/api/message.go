package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/log"
	"github.com/parleyhq/parley/internal/store"
)

// MaxQueryLength bounds message queries accepted over the API.
const MaxQueryLength = 100_000

// statusClientClosedRequest is nginx's non-standard code for a client that
// disconnected before the response was ready. The client never sees it; it
// keeps access logs from counting disconnects as server errors.
const statusClientClosedRequest = 499

// MessageResponse is the wire shape of a message. The conversation id is
// already in the URL and timestamps are storage-side, so neither is exposed.
type MessageResponse struct {
	ID       int64  `json:"id"`
	Query    string `json:"query"`
	Response string `json:"response"`
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{ID: m.ID, Query: m.Query, Response: m.Response}
}

// MessageHandler handles message endpoints. Creating a message runs the full
// completion flow: confirm the conversation exists, gather recent history as
// provider context, call the completion provider, persist the pair.
type MessageHandler struct {
	store     ConversationStore
	completer llm.Completer
	// historyLimit is how many prior exchanges are sent as provider
	// context. Zero means every query stands alone.
	historyLimit int
	logger       log.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(cs ConversationStore, completer llm.Completer, historyLimit int, logger log.Logger) *MessageHandler {
	return &MessageHandler{
		store:        cs,
		completer:    completer,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// RegisterRoutes registers message routes on the given mux.
func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /conversation/{id}/messages", h.list)
	mux.HandleFunc("POST /conversation/{id}/message", h.create)
}

// list returns all messages of a conversation ordered by id.
func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	messages, err := h.store.Messages(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("failed to list messages", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}

	out := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, toMessageResponse(&messages[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMessageRequest is the request body for sending a query.
type CreateMessageRequest struct {
	Query string `json:"query"`
}

// create runs a query through the completion provider and persists the
// resulting exchange. Nothing is written when the provider fails, so a failed
// request leaves no trace in the conversation.
func (h *MessageHandler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long")
		return
	}

	// Reject unknown conversations before paying for a completion.
	if _, err := h.store.Conversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("failed to check conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create message")
		return
	}

	history, err := h.history(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load history", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create message")
		return
	}

	response, err := h.completer.Complete(r.Context(), req.Query, history)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to send back.
			h.logger.Debug("request canceled during completion", "conversation_id", id)
			w.WriteHeader(statusClientClosedRequest)
		case errors.Is(err, context.DeadlineExceeded):
			h.logger.Warn("completion timed out", "conversation_id", id)
			writeError(w, http.StatusGatewayTimeout, "provider_timeout", "completion provider timed out")
		case errors.Is(err, llm.ErrUnavailable):
			h.logger.Warn("completion provider failed", "error", err, "conversation_id", id)
			writeError(w, http.StatusBadGateway, "provider_unavailable", "completion provider unavailable")
		default:
			h.logger.Error("completion failed", "error", err, "conversation_id", id)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create message")
		}
		return
	}

	msg, err := h.store.CreateMessage(r.Context(), id, req.Query, response)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Conversation deleted between the completion and the write.
			writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		case errors.Is(err, store.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		default:
			h.logger.Error("failed to store message", "error", err, "conversation_id", id)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create message")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// history loads the trailing window of exchanges used as provider context.
func (h *MessageHandler) history(ctx context.Context, conversationID int64) ([]llm.Exchange, error) {
	if h.historyLimit <= 0 {
		return nil, nil
	}

	recent, err := h.store.LastMessages(ctx, conversationID, h.historyLimit)
	if err != nil {
		return nil, err
	}

	exchanges := make([]llm.Exchange, 0, len(recent))
	for _, m := range recent {
		exchanges = append(exchanges, llm.Exchange{Query: m.Query, Response: m.Response})
	}
	return exchanges, nil
}
