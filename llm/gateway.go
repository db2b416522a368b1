package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
)

// FailureReason classifies why a completion produced no text.
type FailureReason string

const (
	ReasonTimeout   FailureReason = "timeout"
	ReasonCanceled  FailureReason = "canceled"
	ReasonStatus    FailureReason = "status"
	ReasonNetwork   FailureReason = "network"
	ReasonMalformed FailureReason = "malformed_body"
)

// Failure describes a completion that did not produce text. Status and
// Message carry the endpoint's error body when there was one; they are for
// logs only.
type Failure struct {
	Reason  FailureReason
	Status  int
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", f.Reason, f.Status, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is either generated text or a Failure, never both.
type Result struct {
	Text    string
	Failure *Failure
}

func (r Result) Failed() bool { return r.Failure != nil }

// Gateway is the only path from the agent to a model. It bounds each call
// with a timeout, prepends the wall-clock hint and turns every error into a
// Failure.
type Gateway struct {
	client  LLMClient
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewGateway wraps client. A non-positive timeout uses config.DefaultTimeout.
func NewGateway(client LLMClient, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, timeout: timeout, logger: logger, now: time.Now}
}

// TimeHint is the system line that lets the model answer date and weekday
// questions without a tool call.
func TimeHint(now time.Time) string {
	return fmt.Sprintf("Current local time: %s, %s. When the user asks about the date, "+
		"the weekday or what day it is, answer directly from this time.",
		now.Format(time.DateTime), now.Weekday())
}

// Complete sends messages, preceded by the time hint, and returns the text
// or a Failure.
func (g *Gateway) Complete(ctx context.Context, messages []session.Message) Result {
	msgs := make([]session.Message, 0, len(messages)+1)
	msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: TimeHint(g.now())})
	msgs = append(msgs, messages...)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	g.logger.Log(ctx, config.LevelTrace, "model request", "messages", msgs)
	text, err := g.client.Chat(callCtx, msgs)
	if err != nil {
		f := classify(ctx, callCtx, err)
		g.logger.Warn("model call failed",
			"reason", f.Reason,
			"status", f.Status,
			"message", f.Message,
			"elapsed", time.Since(start),
		)
		return Result{Failure: f}
	}
	g.logger.Debug("model call completed", "elapsed", time.Since(start), "chars", len(text))
	g.logger.Log(ctx, config.LevelTrace, "model response", "text", text)
	return Result{Text: text}
}

func classify(parent, call context.Context, err error) *Failure {
	var se *StatusError
	switch {
	case parent.Err() != nil:
		return &Failure{Reason: ReasonCanceled, Message: parent.Err().Error(), Err: err}
	case call.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded):
		return &Failure{Reason: ReasonTimeout, Message: err.Error(), Err: err}
	case errors.As(err, &se):
		return &Failure{Reason: ReasonStatus, Status: se.Status, Message: se.Message, Err: err}
	case errors.Is(err, ErrMalformedResponse):
		return &Failure{Reason: ReasonMalformed, Message: err.Error(), Err: err}
	default:
		return &Failure{Reason: ReasonNetwork, Message: err.Error(), Err: err}
	}
}
