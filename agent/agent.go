package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/llm"
	"github.com/m4xw311/studyagent/session"
	"github.com/m4xw311/studyagent/tools"
)

// DefaultSessionID is used when Run is given an empty session id.
const DefaultSessionID = "default"

// degradedMessage is the only text shown to users when the model cannot be
// reached. Transport details stay in the logs.
const degradedMessage = "Sorry, I couldn't reach the language model just now (it may be an " +
	"invalid API key, exhausted quota or a network problem). Please check your credentials, " +
	"quota and network, then try again."

// DegradedMessage returns the fixed reply used when the model is unreachable.
func DegradedMessage() string { return degradedMessage }

// ToolCallRecord is one tool invocation made during a Run, kept for display
// and debugging.
type ToolCallRecord struct {
	Tool   string                 `json:"tool"`
	Args   map[string]interface{} `json:"args"`
	Result string                 `json:"result"`
	Failed bool                   `json:"failed,omitempty"`
	// Raw is the model reply the call was parsed from.
	Raw string `json:"raw"`
}

// Output is the result of one Run.
type Output struct {
	Text      string           `json:"text"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
	Latency   time.Duration    `json:"latency"`
	// Steps counts tool invocations.
	Steps int `json:"steps"`
	// Degraded is set when Text is the fixed unreachable-model reply.
	Degraded bool `json:"degraded,omitempty"`
}

type Agent struct {
	gateway  *llm.Gateway
	store    session.Store
	tools    *tools.ToolRegistry
	logger   *slog.Logger
	maxSteps int
	persona  string
	replay   bool
}

// New builds an Agent. Timeout, step budget and persona come from cfg.
func New(cfg *config.Config, client llm.LLMClient, store session.Store, registry *tools.ToolRegistry, logger *slog.Logger) (*Agent, error) {
	if client == nil {
		return nil, errors.New("agent needs an llm client")
	}
	if store == nil {
		return nil, errors.New("agent needs a session store")
	}
	if registry == nil {
		return nil, errors.New("agent needs a tool registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = config.DefaultMaxSteps
	}
	return &Agent{
		gateway:  llm.NewGateway(client, cfg.Timeout, logger.With("component", "gateway")),
		store:    store,
		tools:    registry,
		logger:   logger.With("component", "agent"),
		maxSteps: maxSteps,
		persona:  cfg.Persona,
		replay:   cfg.Memory.ReplayHistory(),
	}, nil
}

// Tools returns the registry the agent decides over.
func (a *Agent) Tools() *tools.ToolRegistry { return a.tools }

// History returns the stored window of turns for sessionID.
func (a *Agent) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	turns, err := a.store.Load(ctx, sessionID)
	if err != nil {
		return nil, asStorageError("load", sessionID, err)
	}
	return turns, nil
}

// Run answers one user request within sessionID and records exactly one
// turn for it. The returned error is a *session.StorageError when memory
// could not be read or written, or ctx.Err() when the caller gave up; in the
// latter case nothing is recorded.
func (a *Agent) Run(ctx context.Context, userText, sessionID string) (*Output, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	log := a.logger.With("session", sessionID)

	var history []session.Turn
	if a.replay {
		h, err := a.History(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		history = h
	}

	r := &run{
		agent:    a,
		log:      log,
		userText: userText,
		history:  history,
		steps:    &stepContext{},
		out:      &Output{},
	}
	if err := r.decide(ctx); err != nil {
		return nil, err
	}
	if !r.out.Degraded {
		if err := r.finish(ctx); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		log.Info("run canceled before the turn was recorded", "error", err)
		return nil, err
	}
	if err := a.store.Append(ctx, sessionID, userText, r.out.Text); err != nil {
		log.Error("failed to record turn", "error", err)
		return nil, asStorageError("append", sessionID, err)
	}

	r.out.Latency = time.Since(start)
	log.Info("run completed",
		"steps", r.out.Steps,
		"tool_calls", len(r.out.ToolCalls),
		"degraded", r.out.Degraded,
		"latency", r.out.Latency,
	)
	return r.out, nil
}

// run holds the state of one Run invocation.
type run struct {
	agent    *Agent
	log      *slog.Logger
	userText string
	history  []session.Turn
	steps    *stepContext
	out      *Output
}

// decide loops DECIDING and ACTING until the model finishes, the reply cannot
// be used or the step budget is spent. A gateway failure that survives one
// retry aborts with the degraded message. Only ctx errors are returned.
func (r *run) decide(ctx context.Context) error {
	a := r.agent
	for r.out.Steps < a.maxSteps {
		msgs := decisionPrompt(a.persona, a.tools.Describe(), r.history, r.steps, r.userText)
		res, err := r.completeWithRetry(ctx, msgs)
		if err != nil {
			return err
		}
		if res.Failed() {
			r.log.Warn("aborting run, model unreachable while deciding", "reason", res.Failure.Reason)
			r.out.Text = degradedMessage
			r.out.Degraded = true
			return nil
		}

		d, err := ParseDecision(res.Text, a.tools)
		if err != nil {
			var m *Malformed
			errors.As(err, &m)
			r.log.Warn("decision was not understood", "reason", m.Reason, "raw", m.Raw)
			if m.Prose() {
				r.steps.add(labelOutline, strings.TrimSpace(m.Raw))
			}
			r.steps.add(labelDiagnostic, "decision was not understood: "+m.Reason)
			return nil
		}

		switch d := d.(type) {
		case Finish:
			r.log.Debug("model finished deciding", "steps", r.out.Steps)
			r.steps.add(labelOutline, d.Outline)
			return nil
		case ToolCall:
			if !r.act(ctx, d, res.Text) {
				return nil
			}
		}
	}
	r.log.Debug("step budget reached", "max_steps", a.maxSteps)
	return nil
}

// act runs one tool call and records its result. It reports false when the
// tool could not be resolved, which ends deciding.
func (r *run) act(ctx context.Context, call ToolCall, raw string) bool {
	record := ToolCallRecord{Tool: call.Tool, Args: call.Args, Raw: raw}

	result, err := r.agent.tools.Invoke(ctx, call.Tool, call.Args)
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			r.log.Warn("decision named an unavailable tool", "tool", call.Tool)
			r.steps.add(labelDiagnostic, fmt.Sprintf("tool %q is not available", call.Tool))
			return false
		}
		r.log.Debug("tool failed", "tool", call.Tool, "error", err)
		result = "error: " + err.Error()
		record.Failed = true
	}

	record.Result = result
	r.out.ToolCalls = append(r.out.ToolCalls, record)
	r.steps.add(call.Tool, result)
	r.out.Steps++
	r.log.Debug("tool called", "tool", call.Tool, "args", call.Args, "failed", record.Failed)
	return true
}

// finish makes the single final-answer call.
func (r *run) finish(ctx context.Context) error {
	a := r.agent
	res := a.gateway.Complete(ctx, finalPrompt(a.persona, r.history, r.steps, r.userText))
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Failed() {
		r.log.Warn("final answer unavailable, using degraded message", "reason", res.Failure.Reason)
		r.out.Text = degradedMessage
		r.out.Degraded = true
		return nil
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = r.steps.outline()
	}
	if text == "" {
		r.log.Warn("model returned an empty final answer")
		text = degradedMessage
		r.out.Degraded = true
	}
	r.out.Text = text
	return nil
}

// completeWithRetry calls the gateway and retries once on failure.
func (r *run) completeWithRetry(ctx context.Context, msgs []session.Message) (llm.Result, error) {
	var res llm.Result
	for attempt := 1; attempt <= 2; attempt++ {
		res = r.agent.gateway.Complete(ctx, msgs)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !res.Failed() {
			return res, nil
		}
		r.log.Debug("decision call failed", "attempt", attempt, "reason", res.Failure.Reason)
	}
	return res, nil
}

func asStorageError(op, sessionID string, err error) error {
	var se *session.StorageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &session.StorageError{Op: op, SessionID: sessionID, Err: err}
}
