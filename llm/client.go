package llm

import (
	"context"
	"fmt"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
)

// LLMClient is the interface for interacting with a Large Language Model.
// Implementations return *StatusError for error responses from the
// endpoint and ErrMalformedResponse when a success body carries no text.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message) (string, error)
}

// ErrMalformedResponse means the endpoint answered 2xx with a body that has
// no usable generated text.
var ErrMalformedResponse = errors.Sentinel("malformed response body")

// StatusError is an error body returned by the model endpoint.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewClient initializes the provider named in cfg.LLMClient. An empty or
// "mock" provider returns a MockLLMClient that needs no credentials.
func NewClient(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	switch cfg.LLMClient {
	case "openai":
		return NewOpenAILLMClient(ctx, cfg.Model, cfg.BaseURL)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, cfg.Model, cfg.BaseURL)
	case "gemini":
		return NewGeminiLLMClient(ctx, cfg.Model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, cfg.Model)
	case "", "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unknown llm client %q (valid: openai, anthropic, gemini, bedrock, mock)", cfg.LLMClient)
	}
}

// splitSystem separates system content, joined in order, from the rest of
// the conversation. Providers with a dedicated system field use it.
func splitSystem(messages []session.Message) (string, []session.Message) {
	var system string
	rest := make([]session.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == session.RoleSystem {
			if m.Content == "" {
				continue
			}
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
