package clients

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClientNotFound is returned when no client matches the lookup.
var ErrClientNotFound = errors.New("clients: client not found")

// Client represents a clinic tenant. All conversations, profiles and
// webhook targets are scoped to one client.
type Client struct {
	ClientID       uuid.UUID `json:"client_id"`
	ClinicName     string    `json:"clinic_name"`
	LeadWebhookURL *string   `json:"lead_webhook_url,omitempty"`
	AccessToken    *string   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
