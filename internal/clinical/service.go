package clinical

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/dentalchat-ai/platform/internal/conversation"
	"github.com/dentalchat-ai/platform/internal/profiles"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

var serviceTracer = otel.Tracer("dentalchat.internal.clinical.service")

// ErrProfileRequired is returned when the client has no practice profile
// configured. The advisor refuses to answer without one.
var ErrProfileRequired = errors.New("clinical: practice profile not configured")

// fallbackReply is served when the generator faults.
const fallbackReply = "I apologize, but I'm having difficulty processing your request. Please try rephrasing your question or contact support if the issue persists."

// ProfileReader loads a client's practice profile.
type ProfileReader interface {
	Get(ctx context.Context, clientID uuid.UUID) (json.RawMessage, error)
}

// ContextRetriever supplies tenant-scoped knowledge snippets.
type ContextRetriever interface {
	Retrieve(ctx context.Context, clientID, query string) ([]string, error)
}

// TurnLogger appends advisor turns to the audit log under the clinical
// channel.
type TurnLogger interface {
	LoadOrCreate(ctx context.Context, conversationID, clientID uuid.UUID, agent conversation.AgentType) (*conversation.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, agent conversation.AgentType, sender, message string) error
}

// Advisor answers dentist questions using the practice profile and retrieved
// knowledge. It keeps no dialogue state; callers supply their own history.
type Advisor struct {
	profiles  ProfileReader
	retriever ContextRetriever
	generator Generator
	turns     TurnLogger
	logger    *logging.Logger
}

// NewAdvisor wires the clinical advisor service.
func NewAdvisor(profileReader ProfileReader, retriever ContextRetriever, generator Generator, turns TurnLogger, logger *logging.Logger) *Advisor {
	if profileReader == nil {
		panic("clinical: profile reader cannot be nil")
	}
	if generator == nil {
		panic("clinical: generator cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Advisor{
		profiles:  profileReader,
		retriever: retriever,
		generator: generator,
		turns:     turns,
		logger:    logger,
	}
}

// Advise answers one question for the authenticated client. conversationID
// scopes the audit log; a fresh id starts a new clinical audit trail.
func (a *Advisor) Advise(ctx context.Context, clientID, conversationID uuid.UUID, message string, history []Message) (*Advice, error) {
	ctx, span := serviceTracer.Start(ctx, "clinical.advise_turn")
	defer span.End()

	profile, err := a.profiles.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileNotFound) {
			return nil, ErrProfileRequired
		}
		return nil, err
	}

	a.logTurn(ctx, clientID, conversationID, conversation.SenderUser, message)

	var snippets []string
	if a.retriever != nil {
		snippets, err = a.retriever.Retrieve(ctx, clientID.String(), message)
		if err != nil {
			a.logger.Warn("clinical knowledge retrieval failed, continuing without context",
				"error", err,
				"client_id", clientID.String(),
			)
			snippets = nil
		}
	}

	advice, err := a.generator.Advise(ctx, AdviceInput{
		Profile: profile,
		History: history,
		Message: message,
		Context: snippets,
	})
	if err != nil {
		span.RecordError(err)
		a.logger.Error("clinical generator fault, serving fallback",
			"error", err,
			"client_id", clientID.String(),
		)
		advice = &Advice{
			ReplyText:        fallbackReply,
			ConfidenceLevel:  ConfidenceLow,
			RequiresReferral: false,
			SafetyWarnings:   []string{"Response generated after error - please verify independently"},
		}
	}

	a.logTurn(ctx, clientID, conversationID, conversation.SenderAssistant, advice.ReplyText)

	a.logger.Info("clinical advice generated",
		"client_id", clientID.String(),
		"confidence_level", advice.ConfidenceLevel,
		"requires_referral", advice.RequiresReferral,
		"safety_warnings", len(advice.SafetyWarnings),
	)
	return advice, nil
}

// logTurn records a clinical turn in the audit log. Audit faults never fail
// the advice call.
func (a *Advisor) logTurn(ctx context.Context, clientID, conversationID uuid.UUID, sender, message string) {
	if a.turns == nil || conversationID == uuid.Nil {
		return
	}
	if _, err := a.turns.LoadOrCreate(ctx, conversationID, clientID, conversation.AgentClinical); err != nil {
		a.logger.Warn("failed to register clinical conversation", "error", err)
		return
	}
	if err := a.turns.AppendMessage(ctx, conversationID, conversation.AgentClinical, sender, message); err != nil {
		a.logger.Warn("failed to log clinical turn", "error", err)
	}
}
