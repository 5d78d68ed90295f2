// Package admin exposes operator endpoints for lead review, delivery audits
// and practice profile management. All routes sit behind the admin JWT.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dentalchat-ai/platform/internal/conversation"
	"github.com/dentalchat-ai/platform/internal/delivery"
	"github.com/dentalchat-ai/platform/internal/profiles"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

// LeadLister lists finalized conversations for a client.
type LeadLister interface {
	FinalizedByClient(ctx context.Context, clientID uuid.UUID) ([]conversation.FinalizedLead, error)
}

// AuditLister lists the webhook delivery trail for a client.
type AuditLister interface {
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]delivery.AuditEntry, error)
}

// ProfileStore manages practice profiles.
type ProfileStore interface {
	Get(ctx context.Context, clientID uuid.UUID) (json.RawMessage, error)
	Upsert(ctx context.Context, clientID uuid.UUID, profile json.RawMessage) error
	Delete(ctx context.Context, clientID uuid.UUID) (bool, error)
}

// Handler serves the admin API.
type Handler struct {
	leads    LeadLister
	audits   AuditLister
	profiles ProfileStore
	logger   *logging.Logger
}

// NewHandler creates the admin handler.
func NewHandler(leads LeadLister, audits AuditLister, profileStore ProfileStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{leads: leads, audits: audits, profiles: profileStore, logger: logger}
}

func clientIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "clientID"))
}

// Leads handles GET /api/admin/leads/{clientID}.
func (h *Handler) Leads(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	leads, err := h.leads.FinalizedByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err, "client_id", clientID.String())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if leads == nil {
		leads = []conversation.FinalizedLead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"leads":     leads,
	})
}

// Deliveries handles GET /api/admin/deliveries/{clientID}.
func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	entries, err := h.audits.ListByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("failed to list deliveries", "error", err, "client_id", clientID.String())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []delivery.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_id":  clientID,
		"deliveries": entries,
	})
}

// GetProfile handles GET /api/admin/profiles/{clientID}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.Get(r.Context(), clientID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			http.Error(w, "practice profile not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load profile", "error", err, "client_id", clientID.String())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(profile)
}

// PutProfile handles PUT /api/admin/profiles/{clientID}.
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "profile must be valid JSON", http.StatusBadRequest)
		return
	}

	if err := h.profiles.Upsert(r.Context(), clientID, body); err != nil {
		h.logger.Error("failed to save profile", "error", err, "client_id", clientID.String())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": clientID, "status": "saved"})
}

// DeleteProfile handles DELETE /api/admin/profiles/{clientID}.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	clientID, err := clientIDParam(r)
	if err != nil {
		http.Error(w, "invalid client id", http.StatusBadRequest)
		return
	}

	deleted, err := h.profiles.Delete(r.Context(), clientID)
	if err != nil {
		h.logger.Error("failed to delete profile", "error", err, "client_id", clientID.String())
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "practice profile not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
