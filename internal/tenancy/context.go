package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const clientKey ctxKey = "dentalchat.client_id"

// WithClientID stores the tenant's client id in context.
func WithClientID(ctx context.Context, clientID uuid.UUID) context.Context {
	return context.WithValue(ctx, clientKey, clientID)
}

// ClientIDFromContext extracts the client id if present.
func ClientIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(clientKey)
	if val == nil {
		return uuid.Nil, false
	}
	clientID, ok := val.(uuid.UUID)
	return clientID, ok && clientID != uuid.Nil
}
