package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the persistent record of conversation identity, stage and
// accumulated structured state.
type Conversation struct {
	ConversationID uuid.UUID
	ClientID       uuid.UUID
	AgentType      AgentType
	CurrentStage   Stage
	State          map[string]*string
	ResumeStage    *Stage
	Revision       int64
	IsFinalized    bool
	FinalizedAt    *time.Time
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// State fields collected during booking. Initialized to null on creation and
// filled in additively turn over turn.
var stateFields = []string{
	"name",
	"phone",
	"email",
	"service",
	"appointment_type",
	"last_visit",
	"preferred_date",
	"preferred_time",
}

// NewState returns the initial state mapping with every known field null.
func NewState() map[string]*string {
	state := make(map[string]*string, len(stateFields))
	for _, field := range stateFields {
		state[field] = nil
	}
	return state
}

// mergeState applies extracted field updates to a copy of the current state.
// Only non-null values overwrite; once a field is known a null extraction can
// never erase it.
func mergeState(state, updates map[string]*string) map[string]*string {
	merged := make(map[string]*string, len(state)+len(updates))
	for k, v := range state {
		merged[k] = v
	}
	for k, v := range updates {
		if v == nil {
			continue
		}
		value := *v
		merged[k] = &value
	}
	return merged
}

// ChatMessage is a single entry in the append-only message log.
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
