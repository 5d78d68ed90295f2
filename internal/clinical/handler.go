package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dentalchat-ai/platform/internal/profiles"
	"github.com/dentalchat-ai/platform/internal/tenancy"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

// AdviceService answers clinical questions for an authenticated client.
type AdviceService interface {
	Advise(ctx context.Context, clientID, conversationID uuid.UUID, message string, history []Message) (*Advice, error)
}

// ChatRequest is the inbound body for POST /api/clinical/chat. The advisor
// is stateless; the caller maintains and resends its own history.
type ChatRequest struct {
	Message             string     `json:"message"`
	ConversationID      *uuid.UUID `json:"conversation_id,omitempty"`
	ConversationHistory []Message  `json:"conversation_history,omitempty"`
}

// ChatResponse is the reply body for POST /api/clinical/chat.
type ChatResponse struct {
	Response         string   `json:"response"`
	ClientID         string   `json:"client_id"`
	ConfidenceLevel  string   `json:"confidence_level"`
	RequiresReferral bool     `json:"requires_referral"`
	SafetyWarnings   []string `json:"safety_warnings"`
}

// Handler handles clinical advisor requests. The client id comes from the
// token middleware via the request context.
type Handler struct {
	service  AdviceService
	profiles ProfileReader
	logger   *logging.Logger
}

// NewHandler creates a clinical handler.
func NewHandler(service AdviceService, profileReader ProfileReader, logger *logging.Logger) *Handler {
	if service == nil {
		panic("clinical: advice service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, profiles: profileReader, logger: logger}
}

// Chat handles POST /api/clinical/chat requests.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	clientID, ok := tenancy.ClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != nil {
		conversationID = *req.ConversationID
	}

	advice, err := h.service.Advise(r.Context(), clientID, conversationID, req.Message, req.ConversationHistory)
	if err != nil {
		if errors.Is(err, ErrProfileRequired) {
			http.Error(w, "practice profile not configured", http.StatusNotFound)
			return
		}
		h.logger.Error("clinical chat failed",
			"error", err,
			"client_id", clientID.String(),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	warnings := advice.SafetyWarnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Response:         advice.ReplyText,
		ClientID:         clientID.String(),
		ConfidenceLevel:  advice.ConfidenceLevel,
		RequiresReferral: advice.RequiresReferral,
		SafetyWarnings:   warnings,
	})
}

// Profile handles GET /api/clinical/profile requests. Returns the practice
// profile or an empty object when none is configured.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	clientID, ok := tenancy.ClientIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.profiles == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	profile, err := h.profiles.Get(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{})
			return
		}
		h.logger.Error("failed to load practice profile",
			"error", err,
			"client_id", clientID.String(),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(profile)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
