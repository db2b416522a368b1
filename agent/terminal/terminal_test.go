package terminal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/llm"
	"github.com/m4xw311/studyagent/session"
	"github.com/m4xw311/studyagent/tools"
)

// createTestAgent builds an agent over a scripted model and a temp store.
func createTestAgent(t *testing.T, client llm.LLMClient) (*agent.Agent, session.Store) {
	t.Helper()
	cfg := config.Default()
	ts, err := cfg.GetToolset("default")
	if err != nil {
		t.Fatal(err)
	}
	registry, err := tools.NewToolRegistry(cfg, ts)
	if err != nil {
		t.Fatal(err)
	}
	store, err := session.NewFileStore(t.TempDir(), cfg.Memory.Window)
	if err != nil {
		t.Fatal(err)
	}
	a, err := agent.New(cfg, client, store, registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return a, store
}

func TestTerminalRunUntilEOF(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.Reply{Text: `{"action":"finish","final":"greet"}`},
		llm.Reply{Text: "Hello, learner!"},
	)
	a, store := createTestAgent(t, client)

	var out bytes.Buffer
	term := New(a, "term", strings.NewReader("\n   \nhello\n"), &out)
	if err := term.Run(context.Background(), ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out.String(), "Assistant: Hello, learner!") {
		t.Errorf("output = %q", out.String())
	}
	got, _ := store.Load(context.Background(), "term")
	if len(got) != 1 {
		t.Errorf("expected blank lines to be skipped, got %d turns", len(got))
	}
}

func TestTerminalExitWords(t *testing.T) {
	for _, word := range []string{"/quit", "/exit", "exit", "QUIT", "bye"} {
		t.Run(word, func(t *testing.T) {
			client := llm.NewScriptedClient(llm.Reply{Text: "unused"})
			a, _ := createTestAgent(t, client)

			var out bytes.Buffer
			term := New(a, "exit", strings.NewReader(word+"\nhello\n"), &out)
			if err := term.Run(context.Background(), ""); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if client.Calls() != 0 {
				t.Errorf("input after %q was processed", word)
			}
		})
	}
}

func TestTerminalInitialPrompt(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.Reply{Text: `{"action":"finish","final":"x"}`},
		llm.Reply{Text: "Answer to the initial prompt"},
	)
	a, _ := createTestAgent(t, client)

	var out bytes.Buffer
	term := New(a, "init", strings.NewReader(""), &out)
	if err := term.Run(context.Background(), "initial test prompt"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Assistant: Answer to the initial prompt") {
		t.Errorf("output = %q", out.String())
	}
}

func TestTerminalVerbosity(t *testing.T) {
	testCases := []struct {
		verbosity ToolVerbosity
		want      []string
		notWant   []string
	}{
		{ToolVerbosityNone, nil, []string{"Tool `multiply`"}},
		{ToolVerbosityInfo, []string{"Tool `multiply` called\n"}, []string{"output:"}},
		{ToolVerbosityAll, []string{"Tool `multiply` called with args:", "Tool `multiply` output: 100"}, nil},
	}

	for _, tc := range testCases {
		t.Run(string(tc.verbosity), func(t *testing.T) {
			client := llm.NewScriptedClient(
				llm.Reply{Text: `{"action":"tool","tool":"multiply","args":{"a":12.5,"b":8}}`},
				llm.Reply{Text: `{"action":"finish","final":"100"}`},
				llm.Reply{Text: "It is 100."},
			)
			a, _ := createTestAgent(t, client)

			var out bytes.Buffer
			term := New(a, "verbose", strings.NewReader("what is 12.5 times 8?\n"), &out)
			term.Verbosity = tc.verbosity
			term.ShowLatency = true
			if err := term.Run(context.Background(), ""); err != nil {
				t.Fatalf("Run: %v", err)
			}

			for _, w := range tc.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("missing %q in %q", w, out.String())
				}
			}
			for _, w := range tc.notWant {
				if strings.Contains(out.String(), w) {
					t.Errorf("unexpected %q in %q", w, out.String())
				}
			}
			if !strings.Contains(out.String(), "(answered in ") {
				t.Errorf("latency not shown: %q", out.String())
			}
		})
	}
}

func TestParseToolVerbosity(t *testing.T) {
	for in, want := range map[string]ToolVerbosity{"": ToolVerbosityNone, "INFO": ToolVerbosityInfo, "all": ToolVerbosityAll} {
		got, err := ParseToolVerbosity(in)
		if err != nil || got != want {
			t.Errorf("ParseToolVerbosity(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseToolVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}
