// Package profiles stores the per-tenant practice profile: the free-form
// structured document describing a doctor's clinical philosophy and
// preferences. It is read-only input to the clinical advisor prompt.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrProfileNotFound is returned when a client has no practice profile.
var ErrProfileNotFound = errors.New("profiles: practice profile not found")

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists practice profiles, one-to-one with clients.
type Store struct {
	pool Querier
}

// NewStore initializes a profile store backed by pgx.
func NewStore(pool Querier) *Store {
	if pool == nil {
		panic("profiles: pgx pool required")
	}
	return &Store{pool: pool}
}

// Get loads the profile JSON for a client.
func (s *Store) Get(ctx context.Context, clientID uuid.UUID) (json.RawMessage, error) {
	query := `
		SELECT profile_json
		FROM practice_profiles
		WHERE practice_id = $1
	`
	var profile []byte
	if err := s.pool.QueryRow(ctx, query, clientID).Scan(&profile); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("profiles: select failed: %w", err)
	}
	return json.RawMessage(profile), nil
}

// Upsert creates or replaces the profile for a client.
func (s *Store) Upsert(ctx context.Context, clientID uuid.UUID, profile json.RawMessage) error {
	if len(profile) == 0 || !json.Valid(profile) {
		return errors.New("profiles: profile must be valid JSON")
	}
	query := `
		INSERT INTO practice_profiles (practice_id, profile_json)
		VALUES ($1, $2)
		ON CONFLICT (practice_id)
		DO UPDATE SET profile_json = EXCLUDED.profile_json, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, clientID, []byte(profile)); err != nil {
		return fmt.Errorf("profiles: upsert failed: %w", err)
	}
	return nil
}

// Delete removes a client's profile. Returns false if none existed.
func (s *Store) Delete(ctx context.Context, clientID uuid.UUID) (bool, error) {
	query := `
		DELETE FROM practice_profiles
		WHERE practice_id = $1
	`
	ct, err := s.pool.Exec(ctx, query, clientID)
	if err != nil {
		return false, fmt.Errorf("profiles: delete failed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
