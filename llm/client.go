package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Message is a single chat message.
type Message struct {
	Role    string // "system" or "user"
	Content string
}

// Request describes one completion call. Callers must treat both malformed
// output and call-level errors as recoverable and fall back locally.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int64
	JSONMode    bool
}

// Completer abstracts the language-model completion service. A nil Completer
// at a call site means the service is not configured; every consumer has a
// non-LLM fallback for that case.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAI implements Completer using the OpenAI chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI returns a client bound to the given default model.
func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// ModelName returns the default model for this client.
func (o *OpenAI) ModelName() string { return o.model }

// Complete issues one chat completion call and returns the raw text of the
// first choice.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("completion request has no messages")
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
