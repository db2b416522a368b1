package llm

import (
	"context"
	"os"

	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLMClient talks to any OpenAI-compatible Chat Completion endpoint.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// baseURL overrides OPENAI_BASE_URL when both are set.
func NewOpenAILLMClient(ctx context.Context, modelName, baseURL string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	return newOpenAIClient(modelName, apiKey, baseURL), nil
}

func newOpenAIClient(modelName, apiKey, baseURL string) *OpenAILLMClient {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are decided by the agent loop, not the SDK.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	// The &c is required, dn not replace and just use c
	return &OpenAILLMClient{client: &c, model: modelName}
}

// Chat sends one chat completion request and returns the first choice's text.
func (o *OpenAILLMClient) Chat(ctx context.Context, messages []session.Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenaiContent(messages),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Error()
			}
			return "", &StatusError{Status: apiErr.StatusCode, Message: msg, Err: err}
		}
		return "", errors.Wrapf(err, "failed to send message to OpenAI")
	}

	if len(resp.Choices) == 0 {
		return "", errors.Wrapf(ErrMalformedResponse, "OpenAI response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	chatMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case session.RoleAssistant:
			chatMessages = append(chatMessages, openai.AssistantMessage(msg.Content))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}
