package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/dentalchat-ai/platform/internal/clients"
	"github.com/dentalchat-ai/platform/internal/tenancy"
)

type fakeResolver struct {
	client *clients.Client
	err    error
	token  string
}

func (f *fakeResolver) GetByToken(_ context.Context, token string) (*clients.Client, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return f.client, nil
}

func TestClientTokenMissingHeader(t *testing.T) {
	mw := ClientToken(&fakeResolver{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/clinical/chat", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestClientTokenUnknownToken(t *testing.T) {
	mw := ClientToken(&fakeResolver{err: clients.ErrClientNotFound}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/clinical/chat", nil)
	req.Header.Set("X-Client-Token", "bogus")
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestClientTokenLookupFailure(t *testing.T) {
	mw := ClientToken(&fakeResolver{err: errors.New("db down")}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/clinical/chat", nil)
	req.Header.Set("X-Client-Token", "token")
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestClientTokenValid(t *testing.T) {
	clientID := uuid.New()
	resolver := &fakeResolver{client: &clients.Client{ClientID: clientID}}
	mw := ClientToken(resolver, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/clinical/chat", nil)
	req.Header.Set("X-Client-Token", "  valid-token  ")
	rec := httptest.NewRecorder()

	called := false
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, ok := tenancy.ClientIDFromContext(r.Context())
		if !ok || got != clientID {
			t.Fatalf("expected client id %s in context, got %s", clientID, got)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if resolver.token != "valid-token" {
		t.Fatalf("token not trimmed: %q", resolver.token)
	}
}
