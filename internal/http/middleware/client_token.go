package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dentalchat-ai/platform/internal/clients"
	"github.com/dentalchat-ai/platform/internal/tenancy"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

// TokenResolver resolves an opaque access token to a client record.
type TokenResolver interface {
	GetByToken(ctx context.Context, token string) (*clients.Client, error)
}

// ClientToken authenticates requests by the X-Client-Token header and puts
// the resolved client id on the request context.
func ClientToken(resolver TokenResolver, logger *logging.Logger) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware: token resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get("X-Client-Token"))
			if token == "" {
				http.Error(w, "missing client token", http.StatusUnauthorized)
				return
			}

			client, err := resolver.GetByToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, clients.ErrClientNotFound) {
					http.Error(w, "invalid client token", http.StatusUnauthorized)
					return
				}
				logger.Error("client token lookup failed", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := tenancy.WithClientID(r.Context(), client.ClientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
