package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/log"
	"github.com/parleyhq/parley/internal/store"
)

func messageMux(fs *fakeStore, fc *fakeCompleter, historyLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	NewMessageHandler(fs, fc, historyLimit, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func seedConversation(t *testing.T, fs *fakeStore) *store.Conversation {
	t.Helper()
	conv, err := fs.CreateConversation(context.Background(), "seed")
	require.NoError(t, err)
	return conv
}

func TestMessageHandler_Create(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	fc := &fakeCompleter{response: "the capital of France is Paris"}
	mux := messageMux(fs, fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "capital of France?"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var got MessageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Positive(t, got.ID)
	assert.Equal(t, "capital of France?", got.Query)
	assert.Equal(t, "the capital of France is Paris", got.Response)

	assert.Equal(t, "capital of France?", fc.lastQuery)
	assert.Empty(t, fc.lastHistory, "history disabled by default")
	assert.Equal(t, 1, fs.messageCount(conv.ID))
}

func TestMessageHandler_Create_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid JSON", body: `not json`},
		{name: "empty query", body: `{"query": ""}`},
		{name: "blank query", body: `{"query": "   "}`},
		{name: "missing query", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			seedConversation(t, fs)
			fc := &fakeCompleter{}
			mux := messageMux(fs, fc, 0)

			req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
				strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, fc.calls, "provider must not be called for invalid input")
		})
	}
}

func TestMessageHandler_Create_ConversationNotFound(t *testing.T) {
	fc := &fakeCompleter{}
	mux := messageMux(newFakeStore(), fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/42/message",
		strings.NewReader(`{"query": "anyone there?"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, fc.calls, "provider must not be called for a missing conversation")
}

func TestMessageHandler_Create_ProviderUnavailable(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	fc := &fakeCompleter{err: llm.ErrUnavailable}
	mux := messageMux(fs, fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "hello"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Zero(t, fs.messageCount(conv.ID), "no row written on provider failure")
}

func TestMessageHandler_Create_ProviderTimeout(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	fc := &fakeCompleter{err: context.DeadlineExceeded}
	mux := messageMux(fs, fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "hello"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Zero(t, fs.messageCount(conv.ID))
}

func TestMessageHandler_Create_ClientDisconnect(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	fc := &fakeCompleter{err: context.Canceled}
	mux := messageMux(fs, fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "hello"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	// A disconnect is not a server error and must not persist anything.
	assert.Equal(t, statusClientClosedRequest, w.Code)
	assert.Zero(t, fs.messageCount(conv.ID))
}

func TestMessageHandler_Create_UnexpectedProviderError(t *testing.T) {
	fs := newFakeStore()
	seedConversation(t, fs)
	fc := &fakeCompleter{err: errors.New("wire torn")}
	mux := messageMux(fs, fc, 0)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "hello"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "wire torn")
}

func TestMessageHandler_Create_HistoryWindow(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := fs.CreateMessage(context.Background(), conv.ID, q, "r-"+q)
		require.NoError(t, err)
	}
	fc := &fakeCompleter{}
	mux := messageMux(fs, fc, 2)

	req := httptest.NewRequest(http.MethodPost, "/conversation/1/message",
		strings.NewReader(`{"query": "q4"}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, fc.lastHistory, 2)
	assert.Equal(t, "q2", fc.lastHistory[0].Query)
	assert.Equal(t, "q3", fc.lastHistory[1].Query)
}

func TestMessageHandler_List(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	_, err := fs.CreateMessage(context.Background(), conv.ID, "first", "1")
	require.NoError(t, err)
	_, err = fs.CreateMessage(context.Background(), conv.ID, "second", "2")
	require.NoError(t, err)

	mux := messageMux(fs, &fakeCompleter{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/conversation/1/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got []MessageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Query)
	assert.Equal(t, "second", got[1].Query)
}

func TestMessageHandler_List_WireShape(t *testing.T) {
	fs := newFakeStore()
	conv := seedConversation(t, fs)
	_, err := fs.CreateMessage(context.Background(), conv.ID, "q", "r")
	require.NoError(t, err)

	mux := messageMux(fs, &fakeCompleter{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/conversation/1/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// Each element carries exactly id, query, and response.
	var raw []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	require.Len(t, raw, 1)
	assert.Len(t, raw[0], 3)
	assert.Contains(t, raw[0], "id")
	assert.Contains(t, raw[0], "query")
	assert.Contains(t, raw[0], "response")
}

func TestMessageHandler_List_EmptyConversation(t *testing.T) {
	fs := newFakeStore()
	seedConversation(t, fs)

	mux := messageMux(fs, &fakeCompleter{}, 0)
	req := httptest.NewRequest(http.MethodGet, "/conversation/1/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestMessageHandler_List_NotFound(t *testing.T) {
	mux := messageMux(newFakeStore(), &fakeCompleter{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/conversation/7/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
