package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appointly/assistant/internal/appointments"
	"github.com/appointly/assistant/internal/assistant"
	"github.com/appointly/assistant/internal/memory"
)

func newTestHandler(t *testing.T) *ChatHandler {
	t.Helper()
	mem := memory.NewInMemoryStore()
	dialog := assistant.NewDialog(appointments.NewInMemoryStore(), nil)
	extractor := assistant.NewFallbackChain(assistant.NewPatternExtractor())
	knowledge := assistant.NewKnowledgeEngine(nil, mem, time.Second, nil)
	svc := assistant.NewService(dialog, extractor, knowledge, nil, mem, nil, nil)
	return NewChatHandler(svc, nil)
}

func TestHandleChat(t *testing.T) {
	h := newTestHandler(t)

	body := `{"text": "I want to schedule an appointment", "session_id": "s-1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Who would you like to schedule an appointment with?", resp.Response)
	assert.Equal(t, "s-1", resp.SessionID)
	require.NotNil(t, resp.Context)
	assert.Equal(t, assistant.IntentSchedule, resp.Context.Intent)
	assert.Equal(t, assistant.PhaseAskingPerson, resp.Context.Phase)
}

// The context from one response drives the next turn.
func TestHandleChatEchoedContext(t *testing.T) {
	h := newTestHandler(t)

	send := func(body string) chatResponse {
		req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleChat(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp chatResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		return resp
	}

	first := send(`{"text": "I want to schedule an appointment", "session_id": "s-1"}`)

	ctxJSON, err := json.Marshal(first.Context)
	require.NoError(t, err)
	second := send(`{"text": "John", "session_id": "s-1", "context": ` + string(ctxJSON) + `}`)

	assert.Equal(t, "What day would you like to schedule with John?", second.Response)
	assert.Equal(t, "John", second.Context.Person)
}

func TestHandleChatGeneratesSessionID(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"text": "hello"}`))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	var resp chatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleChatBadBody(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleChat(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
