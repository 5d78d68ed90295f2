package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

var handlerTracer = otel.Tracer("dentalchat.internal.conversation.handler")

// TurnService runs one turn of the patient conversation.
type TurnService interface {
	HandleTurn(ctx context.Context, clientID uuid.UUID, conversationID *uuid.UUID, message string) (uuid.UUID, string, error)
}

// ChatRequest is the inbound body for POST /api/chat.
type ChatRequest struct {
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	ClientID       uuid.UUID  `json:"client_id"`
	Message        string     `json:"message"`
}

// ChatResponse is the reply body for POST /api/chat.
type ChatResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Response       string    `json:"response"`
}

// Handler handles patient chat requests.
type Handler struct {
	service TurnService
	logger  *logging.Logger
}

// NewHandler creates a new chat handler.
func NewHandler(service TurnService, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: turn service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Chat handles POST /api/chat requests.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx, span := handlerTracer.Start(r.Context(), "conversation.chat")
	defer span.End()

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		span.RecordError(err)
		return
	}
	if req.ClientID == uuid.Nil {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	conversationID, reply, err := h.service.HandleTurn(ctx, req.ClientID, req.ConversationID, req.Message)
	if err != nil {
		h.logger.Error("conversation turn failed",
			"error", err,
			"client_id", req.ClientID.String(),
		)
		span.RecordError(err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: conversationID,
		Response:       reply,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
