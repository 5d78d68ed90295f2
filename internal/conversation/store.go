package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation: not found")
	// ErrRevisionConflict is returned when a save lost a concurrent
	// read-merge-write race and the caller should reload and retry.
	ErrRevisionConflict = errors.New("conversation: revision conflict")
	// ErrClientMismatch is returned when a caller-supplied conversation id
	// already belongs to a different client.
	ErrClientMismatch = errors.New("conversation: conversation belongs to another client")
)

// Store is the persistence contract the engine depends on.
type Store interface {
	LoadOrCreate(ctx context.Context, conversationID, clientID uuid.UUID, agent AgentType) (*Conversation, error)
	Get(ctx context.Context, conversationID uuid.UUID) (*Conversation, error)
	SaveState(ctx context.Context, conv *Conversation) error
	Finalize(ctx context.Context, conversationID uuid.UUID) (bool, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, agent AgentType, sender, message string) error
	History(ctx context.Context, conversationID uuid.UUID, agent AgentType, limit int) ([]ChatMessage, error)
}

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations and the message log in Postgres.
type PostgresStore struct {
	pool Querier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a conversation store backed by pgx.
func NewPostgresStore(pool Querier) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// LoadOrCreate returns the conversation, creating it at stage GREETING with
// all state fields null when the id is unknown. Creation is idempotent:
// caller-supplied new identifiers never error, but an id that already belongs
// to a different client is rejected with ErrClientMismatch.
func (s *PostgresStore) LoadOrCreate(ctx context.Context, conversationID, clientID uuid.UUID, agent AgentType) (*Conversation, error) {
	state, err := json.Marshal(NewState())
	if err != nil {
		return nil, fmt.Errorf("conversation: encode initial state: %w", err)
	}

	insert := `
		INSERT INTO conversations (conversation_id, client_id, agent_type, current_stage, conversation_state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, insert, conversationID, clientID, string(agent), string(StageGreeting), state); err != nil {
		return nil, fmt.Errorf("conversation: create failed: %w", err)
	}

	conv, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	// A colliding id minted by another tenant must not leak its conversation.
	if conv.ClientID != clientID {
		return nil, ErrClientMismatch
	}
	return conv, nil
}

// Get loads a conversation by id.
func (s *PostgresStore) Get(ctx context.Context, conversationID uuid.UUID) (*Conversation, error) {
	query := `
		SELECT conversation_id, client_id, agent_type, current_stage, conversation_state,
		       resume_stage, revision, is_finalized, finalized_at, last_activity_at, created_at
		FROM conversations
		WHERE conversation_id = $1
	`

	var (
		conv        Conversation
		agent       string
		stage       string
		rawState    []byte
		resumeStage *string
	)
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&conv.ConversationID,
		&conv.ClientID,
		&agent,
		&stage,
		&rawState,
		&resumeStage,
		&conv.Revision,
		&conv.IsFinalized,
		&conv.FinalizedAt,
		&conv.LastActivityAt,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: select failed: %w", err)
	}

	conv.AgentType = AgentType(agent)
	conv.CurrentStage = Stage(stage)
	if resumeStage != nil {
		if parsed, ok := ParseStage(*resumeStage); ok {
			conv.ResumeStage = &parsed
		}
	}

	conv.State = make(map[string]*string)
	if len(rawState) > 0 {
		if err := json.Unmarshal(rawState, &conv.State); err != nil {
			return nil, fmt.Errorf("conversation: decode state: %w", err)
		}
	}

	return &conv, nil
}

// SaveState persists the merged state and new stage, compare-and-swapping on
// the revision counter. On success the in-memory revision is bumped to match
// the stored row.
func (s *PostgresStore) SaveState(ctx context.Context, conv *Conversation) error {
	rawState, err := json.Marshal(conv.State)
	if err != nil {
		return fmt.Errorf("conversation: encode state: %w", err)
	}

	var resume *string
	if conv.ResumeStage != nil {
		v := string(*conv.ResumeStage)
		resume = &v
	}

	query := `
		UPDATE conversations
		SET current_stage = $2,
		    conversation_state = $3,
		    resume_stage = $4,
		    revision = revision + 1,
		    last_activity_at = now()
		WHERE conversation_id = $1 AND revision = $5
	`
	ct, err := s.pool.Exec(ctx, query, conv.ConversationID, string(conv.CurrentStage), rawState, resume, conv.Revision)
	if err != nil {
		return fmt.Errorf("conversation: save state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrRevisionConflict
	}

	conv.Revision++
	return nil
}

// Finalize flips is_finalized and stamps finalized_at exactly once. Returns
// false without error when the conversation is missing or already finalized.
func (s *PostgresStore) Finalize(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversations
		SET is_finalized = TRUE,
		    finalized_at = now()
		WHERE conversation_id = $1 AND NOT is_finalized
	`
	ct, err := s.pool.Exec(ctx, query, conversationID)
	if err != nil {
		return false, fmt.Errorf("conversation: finalize: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// AppendMessage adds one entry to the append-only message log under the
// given agent channel.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, agent AgentType, sender, message string) error {
	query := `
		INSERT INTO chat_logs (conversation_id, agent_type, sender_type, message)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, conversationID, string(agent), sender, message); err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

// History returns the most recent messages for a conversation and channel in
// chronological order. Messages logged under a different channel for the
// same conversation are never returned.
func (s *PostgresStore) History(ctx context.Context, conversationID uuid.UUID, agent AgentType, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT sender_type, message, created_at
		FROM chat_logs
		WHERE conversation_id = $1 AND agent_type = $2
		ORDER BY created_at DESC, log_id DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, conversationID, string(agent), limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	defer rows.Close()

	var recent []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan history: %w", err)
		}
		recent = append(recent, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: read history: %w", err)
	}

	// reverse to chronological order
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// FinalizedLead is a finalized conversation viewed as a captured lead.
type FinalizedLead struct {
	ConversationID uuid.UUID          `json:"conversation_id"`
	FinalState     map[string]*string `json:"final_state"`
	FinalizedAt    *time.Time         `json:"finalized_at"`
}

// FinalizedByClient lists finalized conversations for a client, newest first.
func (s *PostgresStore) FinalizedByClient(ctx context.Context, clientID uuid.UUID) ([]FinalizedLead, error) {
	query := `
		SELECT conversation_id, conversation_state, finalized_at
		FROM conversations
		WHERE client_id = $1 AND is_finalized
		ORDER BY finalized_at DESC
	`
	rows, err := s.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list finalized: %w", err)
	}
	defer rows.Close()

	var leads []FinalizedLead
	for rows.Next() {
		var (
			lead     FinalizedLead
			rawState []byte
		)
		if err := rows.Scan(&lead.ConversationID, &rawState, &lead.FinalizedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan finalized: %w", err)
		}
		lead.FinalState = make(map[string]*string)
		if len(rawState) > 0 {
			if err := json.Unmarshal(rawState, &lead.FinalState); err != nil {
				return nil, fmt.Errorf("conversation: decode finalized state: %w", err)
			}
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}
