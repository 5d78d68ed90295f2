package conversation

import "context"

// FallbackReply is served whenever the generator faults. The end user never
// sees a raw error.
const FallbackReply = "I'm sorry, I'm having a little trouble right now. Could you please rephrase that?"

// TurnInput is everything the response generator needs for one turn.
type TurnInput struct {
	Stage   Stage
	State   map[string]*string
	History []ChatMessage
	Message string
	Context []string
}

// Extraction is the single well-defined result shape of a generator call,
// validated at the boundary regardless of which backend produced it.
type Extraction struct {
	ReplyText     string
	UpdatedFields map[string]*string
	UserConfirmed bool
	NextStage     string
	Confidence    float64
}

// Generator produces a structured extraction for a turn. Implementations may
// fail; the engine recovers with FallbackReply and leaves all persistent
// state untouched.
type Generator interface {
	Generate(ctx context.Context, input TurnInput) (*Extraction, error)
}
