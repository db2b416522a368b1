package agent

import (
	"fmt"
	"strings"

	"github.com/m4xw311/studyagent/session"
)

// Labels used for non-tool StepContext entries.
const (
	labelOutline    = "outline"
	labelDiagnostic = "diagnostic"
)

type entry struct {
	Label string
	Text  string
}

// stepContext collects what one Run has learned so far. It never outlives
// the Run that created it.
type stepContext struct {
	entries []entry
}

func (s *stepContext) add(label, text string) {
	s.entries = append(s.entries, entry{Label: label, Text: text})
}

// outline returns the most recent outline entry, if any.
func (s *stepContext) outline() string {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Label == labelOutline && strings.TrimSpace(s.entries[i].Text) != "" {
			return s.entries[i].Text
		}
	}
	return ""
}

func (s *stepContext) render() string {
	if len(s.entries) == 0 {
		return "(no tool results yet)"
	}
	var b strings.Builder
	for i, e := range s.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s", e.Label, e.Text)
	}
	return b.String()
}

func renderHistory(turns []session.Turn) string {
	if len(turns) == 0 {
		return "(no history yet)"
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "user: %s\nassistant: %s", t.User, t.Assistant)
	}
	return b.String()
}

const decisionInstructions = `Reply with exactly one JSON object and nothing else. Either call a tool:
{"action": "tool", "tool": "<tool name>", "args": {"<param>": <value>}}
or finish when you can answer:
{"action": "finish", "final": "<short outline of the answer>"}
Only call a tool when it helps answer the request. Never call a tool that is not listed.`

func decisionPrompt(persona, toolDescriptions string, history []session.Turn, steps *stepContext, userText string) []session.Message {
	var b strings.Builder
	b.WriteString("Decide the next step for the user's request.\n\n")
	b.WriteString("Available tools:\n")
	b.WriteString(toolDescriptions)
	b.WriteString("\n\nConversation so far:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nResults gathered for this request:\n")
	b.WriteString(steps.render())
	b.WriteString("\n\nUser request:\n")
	b.WriteString(userText)
	b.WriteString("\n\n")
	b.WriteString(decisionInstructions)
	return withPersona(persona, b.String())
}

func finalPrompt(persona string, history []session.Turn, steps *stepContext, userText string) []session.Message {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	b.WriteString(renderHistory(history))
	b.WriteString("\n\nUser request:\n")
	b.WriteString(userText)
	b.WriteString("\n\nNotes gathered while working on it:\n")
	b.WriteString(steps.render())
	b.WriteString("\n\nWrite the final answer to the user request using the notes above. ")
	b.WriteString("Answer in plain language, not JSON.")
	return withPersona(persona, b.String())
}

func withPersona(persona, prompt string) []session.Message {
	msgs := make([]session.Message, 0, 2)
	if persona != "" {
		msgs = append(msgs, session.Message{Role: session.RoleSystem, Content: persona})
	}
	return append(msgs, session.Message{Role: session.RoleUser, Content: prompt})
}
