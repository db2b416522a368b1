package llm

import (
	"context"
	"sync"

	"github.com/m4xw311/studyagent/session"
)

// MockLLMClient answers every request with the same canned text. It lets the
// front ends run without credentials.
type MockLLMClient struct{}

const mockReply = "(mock model) I can't think for real yet. Set llm to openai, anthropic, " +
	"gemini or bedrock in .studyagent/config.yaml to talk to a language model."

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return mockReply, nil
}

// Reply is one scripted answer: either Text or Err.
type Reply struct {
	Text string
	Err  error
}

// ScriptedClient replays replies in order and then keeps repeating the last
// one. It records every request it receives.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]session.Message
	// Hook, when set, runs before each reply is returned.
	Hook func(ctx context.Context, call int)
}

func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

func (s *ScriptedClient) Chat(ctx context.Context, messages []session.Message) (string, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, append([]session.Message(nil), messages...))
	var r Reply
	switch {
	case len(s.replies) == 0:
		r = Reply{Text: ""}
	case call < len(s.replies):
		r = s.replies[call]
	default:
		r = s.replies[len(s.replies)-1]
	}
	hook := s.Hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

// Calls returns how many requests were made.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Request returns the messages of the i-th request.
func (s *ScriptedClient) Request(i int) []session.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}
