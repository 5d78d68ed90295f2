package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatClient struct {
	resp openai.ChatCompletionResponse
	err  error
	req  openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func toolCallResponse(arguments string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      adviceFunction,
						Arguments: arguments,
					},
				}},
			},
		}},
	}
}

func TestAdviseParsesStructuredOutput(t *testing.T) {
	client := &fakeChatClient{resp: toolCallResponse(`{
		"response_text": "Start with a periapical radiograph of #19.",
		"confidence_level": "high",
		"requires_referral": false,
		"safety_warnings": ["Rule out cracked tooth before restoring"]
	}`)}
	gen := NewOpenAIGenerator(client, "", nil)

	advice, err := gen.Advise(context.Background(), AdviceInput{Message: "tooth 19 pain on biting"})
	require.NoError(t, err)
	assert.Equal(t, "Start with a periapical radiograph of #19.", advice.ReplyText)
	assert.Equal(t, ConfidenceHigh, advice.ConfidenceLevel)
	assert.False(t, advice.RequiresReferral)
	assert.Equal(t, []string{"Rule out cracked tooth before restoring"}, advice.SafetyWarnings)
}

func TestAdviseIncludesProfileAndContextInPrompt(t *testing.T) {
	client := &fakeChatClient{resp: toolCallResponse(`{"response_text": "ok", "confidence_level": "moderate"}`)}
	gen := NewOpenAIGenerator(client, "", nil)

	profile := json.RawMessage(`{"treatment_philosophy": "Conservative, minimally invasive"}`)
	_, err := gen.Advise(context.Background(), AdviceInput{
		Profile: profile,
		Message: "when to restore early lesions?",
		Context: []string{"Practice prefers resin infiltration for white spot lesions."},
	})
	require.NoError(t, err)

	system := client.req.Messages[0].Content
	assert.Contains(t, system, "Conservative, minimally invasive")
	assert.Contains(t, system, "resin infiltration")
}

func TestAdviseCapsHistoryAtTen(t *testing.T) {
	client := &fakeChatClient{resp: toolCallResponse(`{"response_text": "ok", "confidence_level": "moderate"}`)}
	gen := NewOpenAIGenerator(client, "", nil)

	history := make([]Message, 15)
	for i := range history {
		history[i] = Message{Role: "user", Content: "q"}
	}
	_, err := gen.Advise(context.Background(), AdviceInput{Message: "final question", History: history})
	require.NoError(t, err)

	// system + 10 history + current message
	assert.Len(t, client.req.Messages, 12)
}

func TestAdviseInlineAnswerGetsAnalyzed(t *testing.T) {
	client := &fakeChatClient{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				Content: "This might be internal resorption; refer to an endodontist.",
			},
		}},
	}}
	gen := NewOpenAIGenerator(client, "", nil)

	advice, err := gen.Advise(context.Background(), AdviceInput{Message: "what is this radiolucency?"})
	require.NoError(t, err)
	assert.True(t, advice.RequiresReferral)
	assert.Equal(t, ConfidenceLow, advice.ConfidenceLevel)
}

func TestAdviseUnknownConfidenceNormalized(t *testing.T) {
	client := &fakeChatClient{resp: toolCallResponse(`{"response_text": "ok", "confidence_level": "very high"}`)}
	gen := NewOpenAIGenerator(client, "", nil)

	advice, err := gen.Advise(context.Background(), AdviceInput{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, ConfidenceModerate, advice.ConfidenceLevel)
}

func TestAdviseAPIError(t *testing.T) {
	client := &fakeChatClient{err: errors.New("rate limited")}
	gen := NewOpenAIGenerator(client, "", nil)

	_, err := gen.Advise(context.Background(), AdviceInput{Message: "q"})
	require.Error(t, err)
}
