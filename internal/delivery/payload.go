package delivery

import (
	"time"

	"github.com/google/uuid"
)

// LeadPayload is the JSON body posted to a client's lead webhook when a
// conversation finalizes. Contact fields are promoted to the top level for
// CRM mappers; the full state travels in lead_data.
type LeadPayload struct {
	ClientID       uuid.UUID          `json:"client_id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Name           *string            `json:"name"`
	Phone          *string            `json:"phone"`
	Email          *string            `json:"email"`
	LeadData       map[string]*string `json:"lead_data"`
}

// NewLeadPayload builds the webhook payload from persisted conversation
// state.
func NewLeadPayload(clientID, conversationID uuid.UUID, state map[string]*string) LeadPayload {
	return LeadPayload{
		ClientID:       clientID,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Name:           state["name"],
		Phone:          state["phone"],
		Email:          state["email"],
		LeadData:       state,
	}
}
