package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Decision is the structured reading of one model reply: either a ToolCall
// or a Finish.
type Decision interface {
	decision()
}

// ToolCall asks the loop to run Tool with Args.
type ToolCall struct {
	Tool string
	Args map[string]interface{}
}

// Finish ends the deciding phase. Outline is the model's sketch of the
// answer and may be empty.
type Finish struct {
	Outline string
}

func (ToolCall) decision() {}
func (Finish) decision()   {}

// Reasons a reply is Malformed.
const (
	ReasonNotJSON       = "not a JSON object"
	ReasonMissingAction = "missing action"
	ReasonBadAction     = "unsupported action"
	ReasonBadTool       = "tool must be a non-empty string"
	ReasonBadArgs       = "args must be an object"
	ReasonBadFinal      = "final must be a string"
	ReasonUnknownTool   = "unknown tool"
)

// Malformed is a reply that could not be read as a Decision. Raw holds the
// untrimmed reply for diagnostics.
type Malformed struct {
	Reason string
	Raw    string
}

func (m *Malformed) Error() string {
	return fmt.Sprintf("malformed decision (%s): %q", m.Reason, m.Raw)
}

// Prose reports whether the reply was free text rather than a broken object.
func (m *Malformed) Prose() bool {
	return m.Reason == ReasonNotJSON && strings.TrimSpace(m.Raw) != ""
}

type toolSet interface {
	Has(name string) bool
}

var fence = regexp.MustCompile("(?s)^```[\\w-]*[ \\t]*\\n?(.*?)\\s*```$")

// stripFence removes one surrounding fenced code block, if present.
func stripFence(text string) string {
	if m := fence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// ParseDecision reads raw model text as a Decision. Tool names are checked
// against known. Every failure is a *Malformed.
func ParseDecision(raw string, known toolSet) (Decision, error) {
	text := stripFence(strings.TrimSpace(raw))

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return nil, &Malformed{Reason: ReasonNotJSON, Raw: raw}
	}

	action, ok := obj["action"]
	if !ok {
		return nil, &Malformed{Reason: ReasonMissingAction, Raw: raw}
	}

	switch action {
	case "tool":
		name, ok := obj["tool"].(string)
		if !ok || name == "" {
			return nil, &Malformed{Reason: ReasonBadTool, Raw: raw}
		}
		args := map[string]interface{}{}
		if v, present := obj["args"]; present && v != nil {
			m, ok := v.(map[string]interface{})
			if !ok {
				return nil, &Malformed{Reason: ReasonBadArgs, Raw: raw}
			}
			args = m
		}
		if known == nil || !known.Has(name) {
			return nil, &Malformed{Reason: ReasonUnknownTool, Raw: raw}
		}
		return ToolCall{Tool: name, Args: args}, nil

	case "finish":
		var outline string
		if v, present := obj["final"]; present && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, &Malformed{Reason: ReasonBadFinal, Raw: raw}
			}
			outline = s
		}
		return Finish{Outline: outline}, nil

	default:
		return nil, &Malformed{Reason: ReasonBadAction, Raw: raw}
	}
}
