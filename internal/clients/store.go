package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes client (tenant) records in Postgres.
type Store struct {
	pool Querier
}

// NewStore initializes a client store backed by pgx.
func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("clients: pgx pool required")
	}
	return &Store{pool: pool}
}

// Create inserts a new client record.
func (s *Store) Create(ctx context.Context, clinicName string, webhookURL, accessToken *string) (*Client, error) {
	if strings.TrimSpace(clinicName) == "" {
		return nil, errors.New("clients: clinic name required")
	}

	id := uuid.New()
	query := `
		INSERT INTO clients (client_id, clinic_name, lead_webhook_url, access_token)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	client := Client{
		ClientID:       id,
		ClinicName:     clinicName,
		LeadWebhookURL: webhookURL,
		AccessToken:    accessToken,
	}
	if err := s.pool.QueryRow(ctx, query, id, clinicName, webhookURL, accessToken).Scan(&client.CreatedAt); err != nil {
		return nil, fmt.Errorf("clients: insert failed: %w", err)
	}
	return &client, nil
}

// Get fetches a client by id.
func (s *Store) Get(ctx context.Context, clientID uuid.UUID) (*Client, error) {
	query := `
		SELECT client_id, clinic_name, lead_webhook_url, access_token, created_at
		FROM clients
		WHERE client_id = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, clientID))
}

// GetByToken resolves a client from its opaque access token. Used by the
// clinical channel's authentication.
func (s *Store) GetByToken(ctx context.Context, token string) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrClientNotFound
	}
	query := `
		SELECT client_id, clinic_name, lead_webhook_url, access_token, created_at
		FROM clients
		WHERE access_token = $1
	`
	return s.scanOne(s.pool.QueryRow(ctx, query, token))
}

// WebhookURL returns the configured lead delivery target for a client.
// An empty string means delivery should be skipped.
func (s *Store) WebhookURL(ctx context.Context, clientID uuid.UUID) (string, error) {
	client, err := s.Get(ctx, clientID)
	if err != nil {
		return "", err
	}
	if client.LeadWebhookURL == nil {
		return "", nil
	}
	return strings.TrimSpace(*client.LeadWebhookURL), nil
}

func (s *Store) scanOne(row pgx.Row) (*Client, error) {
	var client Client
	if err := row.Scan(
		&client.ClientID,
		&client.ClinicName,
		&client.LeadWebhookURL,
		&client.AccessToken,
		&client.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("clients: select failed: %w", err)
	}
	return &client, nil
}
