package clinical

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

var generatorTracer = otel.Tracer("dentalchat.internal.clinical.generator")

const generatorTimeout = 30 * time.Second

// Advice is the structured result of one clinical advisor turn.
type Advice struct {
	ReplyText        string
	ConfidenceLevel  string
	RequiresReferral bool
	SafetyWarnings   []string
}

// Message is one entry of the client-maintained conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AdviceInput carries everything the generator needs for one question.
type AdviceInput struct {
	Profile json.RawMessage
	History []Message
	Message string
	Context []string
}

// Generator produces structured clinical advice.
type Generator interface {
	Advise(ctx context.Context, input AdviceInput) (*Advice, error)
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const adviceFunction = "record_clinical_advice"

var adviceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"response_text": {
			"type": "string",
			"description": "The clinical guidance for the treating dentist"
		},
		"confidence_level": {
			"type": "string",
			"enum": ["low", "moderate", "high"],
			"description": "Confidence in the guidance given the available information"
		},
		"requires_referral": {
			"type": "boolean",
			"description": "True when the case warrants a specialist referral"
		},
		"safety_warnings": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Safety concerns the dentist should be aware of"
		}
	},
	"required": ["response_text", "confidence_level"]
}`)

// OpenAIGenerator produces clinical advice with an OpenAI chat model forced
// through a function call for a stable structured shape.
type OpenAIGenerator struct {
	client chatClient
	model  string
	logger *logging.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator returns an OpenAI-backed clinical generator.
func NewOpenAIGenerator(client chatClient, model string, logger *logging.Logger) *OpenAIGenerator {
	if client == nil {
		panic("clinical: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4-turbo"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OpenAIGenerator{client: client, model: model, logger: logger}
}

// Advise invokes the model and validates its structured output.
func (g *OpenAIGenerator) Advise(ctx context.Context, input AdviceInput) (*Advice, error) {
	ctx, span := generatorTracer.Start(ctx, "clinical.advise")
	defer span.End()

	history := input.History
	if len(history) > 10 {
		history = history[len(history)-10:]
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildClinicalPrompt(input.Profile, input.Context),
	})
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
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
		Temperature: 0.1,
		Messages:    messages,
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        adviceFunction,
				Description: "Record the clinical guidance and its advisory metadata.",
				Parameters:  adviceSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: adviceFunction},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, generatorTimeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("clinical: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		err := errors.New("clinical: model returned no choices")
		span.RecordError(err)
		return nil, err
	}

	return parseAdvice(resp.Choices[0].Message)
}

type adviceWire struct {
	ResponseText     string   `json:"response_text"`
	ConfidenceLevel  string   `json:"confidence_level"`
	RequiresReferral bool     `json:"requires_referral"`
	SafetyWarnings   []string `json:"safety_warnings"`
}

func parseAdvice(msg openai.ChatCompletionMessage) (*Advice, error) {
	var arguments string
	for _, call := range msg.ToolCalls {
		if call.Function.Name == adviceFunction {
			arguments = call.Function.Arguments
			break
		}
	}
	if arguments == "" {
		// Inline answers carry no metadata; infer it from the text.
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return nil, errors.New("clinical: model returned no output")
		}
		return analyzeResponse(content), nil
	}

	var wire adviceWire
	if err := json.Unmarshal([]byte(arguments), &wire); err != nil {
		return nil, fmt.Errorf("clinical: malformed structured output: %w", err)
	}
	if strings.TrimSpace(wire.ResponseText) == "" {
		return nil, errors.New("clinical: structured output missing response_text")
	}

	confidence := wire.ConfidenceLevel
	switch confidence {
	case ConfidenceLow, ConfidenceModerate, ConfidenceHigh:
	default:
		confidence = ConfidenceModerate
	}

	return &Advice{
		ReplyText:        strings.TrimSpace(wire.ResponseText),
		ConfidenceLevel:  confidence,
		RequiresReferral: wire.RequiresReferral,
		SafetyWarnings:   wire.SafetyWarnings,
	}, nil
}
