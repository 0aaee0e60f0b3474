package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/appointly/assistant/internal/assistant"
	"github.com/appointly/assistant/pkg/logging"
)

// ChatHandler serves the request/response chat endpoint.
type ChatHandler struct {
	svc    *assistant.Service
	logger *logging.Logger
}

// NewChatHandler wires the handler to the turn pipeline.
func NewChatHandler(svc *assistant.Service, logger *logging.Logger) *ChatHandler {
	if svc == nil {
		panic("handlers: assistant service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{svc: svc, logger: logger.Component("chat")}
}

// chatRequest is the inbound envelope. Context is the state the client
// echoes from the previous response; it may be absent on a first turn.
type chatRequest struct {
	Text      string             `json:"text"`
	Context   *assistant.Context `json:"context,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	IsSpeech  bool               `json:"is_speech,omitempty"`
}

type chatResponse struct {
	Response  string             `json:"response"`
	Context   *assistant.Context `json:"context"`
	SessionID string             `json:"session_id,omitempty"`
}

// HandleChat processes one turn: POST /chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid chat request body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	result := h.svc.ProcessTurn(r.Context(), assistant.TurnRequest{
		Text:      req.Text,
		Context:   req.Context,
		SessionID: req.SessionID,
		IsSpeech:  req.IsSpeech,
	})

	writeJSON(w, http.StatusOK, chatResponse{
		Response:  result.Response,
		Context:   result.Context,
		SessionID: result.SessionID,
	})
}

// HealthCheck reports liveness: GET /health.
func (h *ChatHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
