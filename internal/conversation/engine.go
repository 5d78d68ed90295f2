package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dentalchat-ai/platform/internal/observability/metrics"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

var engineTracer = otel.Tracer("dentalchat.internal.conversation.engine")

// maxSaveAttempts bounds the reload-and-retry loop when a concurrent turn on
// the same conversation wins the revision race.
const maxSaveAttempts = 3

// ContextRetriever supplies ranked knowledge snippets for a tenant-scoped
// query. An empty result means "no context"; retrieval faults degrade the
// same way.
type ContextRetriever interface {
	Retrieve(ctx context.Context, clientID, query string) ([]string, error)
}

// LeadPipeline finalizes a conversation and delivers its lead downstream.
type LeadPipeline interface {
	Finalize(ctx context.Context, conversationID uuid.UUID) (bool, error)
	DeliverLead(clientID, conversationID uuid.UUID, state map[string]*string)
}

// Engine executes one request/response turn of the stateful booking
// assistant and applies exactly one valid stage transition.
type Engine struct {
	store     Store
	retriever ContextRetriever
	generator Generator
	pipeline  LeadPipeline
	logger    *logging.Logger
	metrics   *metrics.ConversationMetrics
	window    int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithHistoryWindow overrides the bounded history window size.
func WithHistoryWindow(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.window = n
		}
	}
}

// WithMetrics attaches turn metrics.
func WithMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine wires the conversation engine.
func NewEngine(store Store, retriever ContextRetriever, generator Generator, pipeline LeadPipeline, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if generator == nil {
		panic("conversation: generator cannot be nil")
	}
	if pipeline == nil {
		panic("conversation: pipeline cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		store:     store,
		retriever: retriever,
		generator: generator,
		pipeline:  pipeline,
		logger:    logger,
		window:    10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTurn runs one turn of the patient booking conversation and returns
// the conversation id and reply text.
func (e *Engine) HandleTurn(ctx context.Context, clientID uuid.UUID, conversationID *uuid.UUID, message string) (uuid.UUID, string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.turn")
	defer span.End()

	id := uuid.New()
	if conversationID != nil && *conversationID != uuid.Nil {
		id = *conversationID
	}
	span.SetAttributes(
		attribute.String("dentalchat.client_id", clientID.String()),
		attribute.String("dentalchat.conversation_id", id.String()),
	)

	conv, err := e.store.LoadOrCreate(ctx, id, clientID, AgentPatient)
	if err != nil {
		return uuid.Nil, "", err
	}

	// Snapshot history before logging the inbound message: the generator
	// receives the current message separately, so it must not also occupy
	// the tail of the window.
	history, err := e.store.History(ctx, id, AgentPatient, e.window)
	if err != nil {
		return uuid.Nil, "", err
	}

	// Log the inbound message before generation so a crash mid-turn still
	// preserves input history.
	if err := e.store.AppendMessage(ctx, id, AgentPatient, SenderUser, message); err != nil {
		return uuid.Nil, "", err
	}

	snippets := e.retrieveContext(ctx, conv, message)

	reply := FallbackReply
	extraction, genErr := e.generator.Generate(ctx, TurnInput{
		Stage:   conv.CurrentStage,
		State:   conv.State,
		History: history,
		Message: message,
		Context: snippets,
	})
	if genErr != nil {
		// Recovered, not fatal: serve the fallback and leave stage and
		// state untouched.
		span.RecordError(genErr)
		e.logger.Error("generator fault, serving fallback reply",
			"error", genErr,
			"conversation_id", id.String(),
			"stage", string(conv.CurrentStage),
		)
		e.metrics.ObserveTurn(string(conv.CurrentStage), "fallback")
	} else {
		reply = extraction.ReplyText
		if reply == "" {
			reply = FallbackReply
		}
		if err := e.applyExtraction(ctx, conv, extraction); err != nil {
			return uuid.Nil, "", err
		}
		e.metrics.ObserveTurn(string(conv.CurrentStage), "ok")
	}

	if err := e.store.AppendMessage(ctx, id, AgentPatient, SenderAssistant, reply); err != nil {
		return uuid.Nil, "", err
	}

	return id, reply, nil
}

// retrieveContext queries the knowledge base only in the stages where
// open-ended questions are expected. Retrieval faults degrade to no context.
func (e *Engine) retrieveContext(ctx context.Context, conv *Conversation, message string) []string {
	if e.retriever == nil {
		return nil
	}
	if conv.CurrentStage != StageGreeting && conv.CurrentStage != StageAnswering {
		return nil
	}

	snippets, err := e.retriever.Retrieve(ctx, conv.ClientID.String(), message)
	if err != nil {
		e.logger.Warn("knowledge retrieval failed, continuing without context",
			"error", err,
			"conversation_id", conv.ConversationID.String(),
		)
		return nil
	}
	return snippets
}

// applyExtraction merges extracted fields, resolves the next stage, persists
// under the revision CAS, and triggers finalization on the transition into
// CLOSING.
func (e *Engine) applyExtraction(ctx context.Context, conv *Conversation, extraction *Extraction) error {
	var saveErr error
	priorStage := conv.CurrentStage

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		merged := mergeState(conv.State, extraction.UpdatedFields)
		nextStage, resume := resolveStage(conv.CurrentStage, conv.ResumeStage, extraction.NextStage)

		conv.State = merged
		conv.CurrentStage = nextStage
		conv.ResumeStage = resume

		saveErr = e.store.SaveState(ctx, conv)
		if saveErr == nil {
			break
		}
		if !errors.Is(saveErr, ErrRevisionConflict) {
			return saveErr
		}

		reloaded, err := e.store.Get(ctx, conv.ConversationID)
		if err != nil {
			return err
		}
		// A concurrent turn advanced the conversation; its stage is now the
		// one this turn transitions from.
		priorStage = reloaded.CurrentStage
		*conv = *reloaded
	}
	if saveErr != nil {
		return fmt.Errorf("conversation: save retries exhausted: %w", saveErr)
	}

	if conv.CurrentStage == StageClosing && priorStage != StageClosing {
		e.triggerFinalization(ctx, conv)
	}
	return nil
}

// triggerFinalization runs the finalize-then-deliver sequence. The delivered
// payload is re-read from the store so it matches durable state. Pipeline
// faults never fail the chat turn.
func (e *Engine) triggerFinalization(ctx context.Context, conv *Conversation) {
	finalized, err := e.pipeline.Finalize(ctx, conv.ConversationID)
	if err != nil {
		e.logger.Error("finalization failed",
			"error", err,
			"conversation_id", conv.ConversationID.String(),
		)
		return
	}
	if !finalized {
		// Already finalized by a concurrent turn; the pipeline's own
		// idempotency gate held.
		return
	}
	e.metrics.ObserveFinalization()

	persisted, err := e.store.Get(ctx, conv.ConversationID)
	if err != nil {
		e.logger.Error("failed to re-read persisted state for delivery",
			"error", err,
			"conversation_id", conv.ConversationID.String(),
		)
		return
	}

	e.logger.Info("conversation finalized, delivering lead",
		"conversation_id", conv.ConversationID.String(),
		"client_id", conv.ClientID.String(),
	)
	e.pipeline.DeliverLead(conv.ClientID, conv.ConversationID, persisted.State)
}
