package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/appointly/assistant/internal/assistant"
	"github.com/appointly/assistant/pkg/logging"
)

// WSHandler serves the streaming chat endpoint. Each connection keeps its
// own dialogue context so clients do not have to echo state every message.
type WSHandler struct {
	svc      *assistant.Service
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler wires the websocket endpoint to the turn pipeline.
func NewWSHandler(svc *assistant.Service, logger *logging.Logger) *WSHandler {
	if svc == nil {
		panic("handlers: assistant service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WSHandler{
		svc:    svc,
		logger: logger.Component("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The chat widget may be embedded on any page.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// wsInbound accepts both the "message" key used by the widget and the
// "text" key used by the REST endpoint.
type wsInbound struct {
	Message   string             `json:"message"`
	Text      string             `json:"text"`
	Context   *assistant.Context `json:"context,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	IsSpeech  bool               `json:"is_speech,omitempty"`
}

func (m wsInbound) text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Text
}

// HandleWS upgrades the connection and processes messages until the client
// disconnects: GET /ws.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := fmt.Sprintf("ws_%s_%s", time.Now().Format("20060102150405"), uuid.NewString()[:8])
	convCtx := &assistant.Context{}
	h.logger.Info("websocket connected", "session_id", sessionID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil {
			// Plain text frames are accepted as bare utterances.
			msg = wsInbound{Text: string(data)}
		}
		if msg.SessionID != "" {
			sessionID = msg.SessionID
		}
		// Client-provided context overrides the connection's stored state.
		if msg.Context != nil {
			convCtx = msg.Context
		}

		result := h.svc.ProcessTurn(r.Context(), assistant.TurnRequest{
			Text:      msg.text(),
			Context:   convCtx,
			SessionID: sessionID,
			IsSpeech:  msg.IsSpeech,
		})
		convCtx = result.Context

		if err := conn.WriteJSON(chatResponse{
			Response:  result.Response,
			Context:   result.Context,
			SessionID: result.SessionID,
		}); err != nil {
			h.logger.Warn("websocket write failed", "error", err, "session_id", sessionID)
			return
		}
	}
}
