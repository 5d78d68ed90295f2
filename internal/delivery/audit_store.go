package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the audit store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuditStore writes the append-only webhook delivery trail. Attempts,
// successes and failures land in separate tables; rows are never updated or
// deleted.
type AuditStore struct {
	pool Querier
}

// NewAuditStore initializes the delivery audit store.
func NewAuditStore(pool Querier) *AuditStore {
	if pool == nil {
		panic("delivery: pgx pool required")
	}
	return &AuditStore{pool: pool}
}

// RecordAttempt logs that a delivery was attempted before the request fires.
func (s *AuditStore) RecordAttempt(ctx context.Context, clientID, conversationID uuid.UUID, webhookURL string) error {
	query := `
		INSERT INTO webhook_attempts (client_id, conversation_id, webhook_url)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, clientID, conversationID, webhookURL); err != nil {
		return fmt.Errorf("delivery: record attempt: %w", err)
	}
	return nil
}

// RecordSuccess logs a 200 response.
func (s *AuditStore) RecordSuccess(ctx context.Context, clientID, conversationID uuid.UUID, statusCode int) error {
	query := `
		INSERT INTO webhook_successes (client_id, conversation_id, status_code)
		VALUES ($1, $2, $3)
	`
	if _, err := s.pool.Exec(ctx, query, clientID, conversationID, statusCode); err != nil {
		return fmt.Errorf("delivery: record success: %w", err)
	}
	return nil
}

// RecordFailure logs a non-200 response or transport error. statusCode is
// zero when no response was received.
func (s *AuditStore) RecordFailure(ctx context.Context, clientID, conversationID uuid.UUID, statusCode int, reason string) error {
	query := `
		INSERT INTO webhook_failures (client_id, conversation_id, status_code, reason)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, clientID, conversationID, statusCode, reason); err != nil {
		return fmt.Errorf("delivery: record failure: %w", err)
	}
	return nil
}

// AuditEntry is one row of the combined delivery trail.
type AuditEntry struct {
	Kind           string    `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	StatusCode     *int      `json:"status_code,omitempty"`
	Reason         *string   `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListByClient returns the merged delivery trail for a client, newest first.
func (s *AuditStore) ListByClient(ctx context.Context, clientID uuid.UUID) ([]AuditEntry, error) {
	query := `
		SELECT kind, conversation_id, status_code, reason, created_at FROM (
			SELECT 'attempt' AS kind, conversation_id, NULL::int AS status_code, NULL::text AS reason, created_at
			FROM webhook_attempts WHERE client_id = $1
			UNION ALL
			SELECT 'success', conversation_id, status_code, NULL, created_at
			FROM webhook_successes WHERE client_id = $1
			UNION ALL
			SELECT 'failure', conversation_id, status_code, reason, created_at
			FROM webhook_failures WHERE client_id = $1
		) trail
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("delivery: list audit trail: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(&entry.Kind, &entry.ConversationID, &entry.StatusCode, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("delivery: scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
