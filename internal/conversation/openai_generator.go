package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"

	"github.com/dentalchat-ai/platform/pkg/logging"
)

var generatorTracer = otel.Tracer("dentalchat.internal.conversation.generator")

const generatorTimeout = 30 * time.Second

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// patientTurnSchema is the JSON schema for the structured extraction the
// model is forced to emit via a function call.
var patientTurnSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"response_text": {
			"type": "string",
			"description": "Conversational reply for the patient"
		},
		"updated_details": {
			"type": "object",
			"description": "Only fields the patient just provided",
			"additionalProperties": {"type": ["string", "null"]}
		},
		"user_confirmed": {
			"type": "boolean",
			"description": "True only after the patient explicitly confirms the collected details"
		},
		"next_stage": {
			"type": "string",
			"enum": ["GREETING", "BOOKING_APPOINTMENT", "ANSWERING_QUESTION", "CLOSING"],
			"description": "The stage the conversation should move to"
		}
	},
	"required": ["response_text"]
}`)

const patientTurnFunction = "record_patient_turn"

// OpenAIGenerator produces patient-concierge extractions with an OpenAI chat
// model forced through a function call for a stable structured shape.
type OpenAIGenerator struct {
	client chatClient
	model  string
	logger *logging.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator returns an OpenAI-backed generator.
func NewOpenAIGenerator(client chatClient, model string, logger *logging.Logger) *OpenAIGenerator {
	if client == nil {
		panic("conversation: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4-turbo"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIGenerator{client: client, model: model, logger: logger}
}

// Generate invokes the model and validates its structured output.
func (g *OpenAIGenerator) Generate(ctx context.Context, input TurnInput) (*Extraction, error) {
	ctx, span := generatorTracer.Start(ctx, "conversation.generate")
	defer span.End()

	messages := make([]openai.ChatCompletionMessage, 0, len(input.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildPatientPrompt(input.Stage, input.State, input.Context),
	})
	for _, msg := range input.History {
		role := openai.ChatMessageRoleUser
		if msg.Sender == SenderAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input.Message,
	})

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		Messages:    messages,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        patientTurnFunction,
				Description: "Record the assistant reply and any booking details extracted this turn.",
				Parameters:  patientTurnSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: patientTurnFunction},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, generatorTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("conversation: model returned no choices")
		span.RecordError(err)
		return nil, err
	}

	return parsePatientTurn(resp.Choices[0].Message)
}

type patientTurnWire struct {
	ResponseText   string             `json:"response_text"`
	UpdatedDetails map[string]*string `json:"updated_details"`
	UserConfirmed  bool               `json:"user_confirmed"`
	NextStage      string             `json:"next_stage"`
}

// parsePatientTurn validates the model output into the single extraction
// shape the engine accepts, whichever path produced it.
func parsePatientTurn(msg openai.ChatCompletionMessage) (*Extraction, error) {
	var arguments string
	for _, call := range msg.ToolCalls {
		if call.Function.Name == patientTurnFunction {
			arguments = call.Function.Arguments
			break
		}
	}
	if arguments == "" {
		// Some models answer inline instead of calling the tool.
		arguments = strings.TrimSpace(msg.Content)
	}
	if arguments == "" {
		return nil, errors.New("conversation: model returned no structured output")
	}

	var wire patientTurnWire
	if err := json.Unmarshal([]byte(arguments), &wire); err != nil {
		return nil, fmt.Errorf("conversation: malformed structured output: %w", err)
	}
	if strings.TrimSpace(wire.ResponseText) == "" {
		return nil, errors.New("conversation: structured output missing response_text")
	}

	extraction := &Extraction{
		ReplyText:     strings.TrimSpace(wire.ResponseText),
		UpdatedFields: wire.UpdatedDetails,
		UserConfirmed: wire.UserConfirmed,
		NextStage:     wire.NextStage,
		Confidence:    0.9,
	}
	if extraction.UpdatedFields == nil {
		extraction.UpdatedFields = map[string]*string{}
	}
	return extraction, nil
}
