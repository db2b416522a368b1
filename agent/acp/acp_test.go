package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/llm"
	"github.com/m4xw311/studyagent/session"
	"github.com/m4xw311/studyagent/tools"
)

type message struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpcError   `json:"error"`
	Params struct {
		SessionID string `json:"sessionId"`
		Update    struct {
			SessionUpdate string `json:"sessionUpdate"`
			Content       struct {
				Text string `json:"text"`
			} `json:"content"`
			ToolCall struct {
				ID   string         `json:"id"`
				Name string         `json:"name"`
				Args map[string]any `json:"args"`
			} `json:"toolCall"`
			ToolResult struct {
				ToolCallID string `json:"toolCallId"`
				Result     string `json:"result"`
			} `json:"toolResult"`
		} `json:"update"`
	} `json:"params"`
}

func newTestAgent(t *testing.T, client llm.LLMClient) (*agent.Agent, session.Store) {
	t.Helper()
	cfg := config.Default()
	ts, _ := cfg.GetToolset("default")
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

// serve feeds the requests to Run and returns every message written back.
func serve(t *testing.T, a *agent.Agent, requests ...string) []message {
	t.Helper()
	in := bufio.NewReader(strings.NewReader(strings.Join(requests, "\n") + "\n"))
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	if err := Run(context.Background(), a, in, out, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var msgs []message
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("output line is not JSON: %q", line)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestACPInitialize(t *testing.T) {
	a, _ := newTestAgent(t, &llm.MockLLMClient{})
	msgs := serve(t, a, `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":1,"clientCapabilities":{"fs":{"readTextFile":true}}}}`)
	if len(msgs) != 1 || msgs[0].Error != nil {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	var result struct {
		ProtocolVersion   int `json:"protocolVersion"`
		AgentCapabilities struct {
			LoadSession bool `json:"loadSession"`
		} `json:"agentCapabilities"`
	}
	if err := json.Unmarshal(msgs[0].Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.ProtocolVersion != 1 || !result.AgentCapabilities.LoadSession {
		t.Errorf("result = %s", msgs[0].Result)
	}
}

func TestACPSessionNew(t *testing.T) {
	a, _ := newTestAgent(t, &llm.MockLLMClient{})
	msgs := serve(t, a, `{"jsonrpc":"2.0","id":1,"method":"session/new","params":{"cwd":"/tmp","mcpServers":[]}}`)
	if len(msgs) != 1 {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(msgs[0].Result, &result)
	if _, err := uuid.Parse(result.SessionID); err != nil {
		t.Errorf("sessionId %q is not a UUID", result.SessionID)
	}
}

func TestACPLoadAndPrompt(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.Reply{Text: `{"action":"tool","tool":"multiply","args":{"a":12.5,"b":8}}`},
		llm.Reply{Text: `{"action":"finish","final":"100"}`},
		llm.Reply{Text: "12.5 times 8 is 100."},
	)
	a, store := newTestAgent(t, client)
	if err := store.Append(context.Background(), "s-1", "hi", "hello!"); err != nil {
		t.Fatal(err)
	}

	msgs := serve(t, a,
		`{"jsonrpc":"2.0","id":1,"method":"session/load","params":{"sessionId":"s-1","cwd":"/tmp"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"session/prompt","params":{"sessionId":"s-1","prompt":[{"type":"text","text":"what is 12.5 times 8?"}]}}`,
	)

	var kinds []string
	for _, m := range msgs {
		if m.Method == "session/update" {
			kinds = append(kinds, m.Params.Update.SessionUpdate)
		} else {
			kinds = append(kinds, "response")
		}
	}
	want := "user_message_chunk,agent_message_chunk,response,tool_call,tool_result,agent_message_chunk,response"
	if strings.Join(kinds, ",") != want {
		t.Fatalf("message sequence = %v", kinds)
	}

	if msgs[0].Params.Update.Content.Text != "hi" || msgs[1].Params.Update.Content.Text != "hello!" {
		t.Errorf("replay = %q, %q", msgs[0].Params.Update.Content.Text, msgs[1].Params.Update.Content.Text)
	}
	if string(msgs[2].Result) != "null" {
		t.Errorf("load result = %s", msgs[2].Result)
	}
	call, result := msgs[3].Params.Update.ToolCall, msgs[4].Params.Update.ToolResult
	if call.Name != "multiply" || result.ToolCallID != call.ID || result.Result != "100" {
		t.Errorf("tool notifications = %+v / %+v", call, result)
	}
	if msgs[5].Params.Update.Content.Text != "12.5 times 8 is 100." {
		t.Errorf("answer = %q", msgs[5].Params.Update.Content.Text)
	}
	if !strings.Contains(string(msgs[6].Result), `"end_turn"`) {
		t.Errorf("prompt result = %s", msgs[6].Result)
	}

	turns, _ := store.Load(context.Background(), "s-1")
	if len(turns) != 2 {
		t.Errorf("expected 2 turns, got %d", len(turns))
	}
}

func TestACPErrors(t *testing.T) {
	a, _ := newTestAgent(t, &llm.MockLLMClient{})
	msgs := serve(t, a,
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"session/cancelAll"}`,
		`{"jsonrpc":"2.0","id":2,"method":"session/prompt","params":{"sessionId":"nope","prompt":[{"type":"text","text":"hi"}]}}`,
		`{"jsonrpc":"2.0","id":3,"method":"session/load","params":{}}`,
	)
	wantCodes := []int{codeParseError, codeMethodNotFound, codeInvalidParams, codeInvalidParams}
	if len(msgs) != len(wantCodes) {
		t.Fatalf("got %d messages", len(msgs))
	}
	for i, code := range wantCodes {
		if msgs[i].Error == nil || msgs[i].Error.Code != code {
			t.Errorf("message %d: error = %+v, want code %d", i, msgs[i].Error, code)
		}
	}
}

// TestExtractUserTextWithResourceLink tests the extractUserText function with ResourceLink content blocks
func TestExtractUserTextWithResourceLink(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	testContent := "This is test file content"
	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	fileURI := "file://" + testFile

	tests := []struct {
		name     string
		blocks   []contentBlock
		expected string
		contains []string
	}{
		{
			name: "text only",
			blocks: []contentBlock{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: "  "},
				{Type: "text", Text: "World"},
			},
			expected: "Hello\nWorld",
		},
		{
			name: "resource_link with file",
			blocks: []contentBlock{
				{Type: "text", Text: "Check this file:"},
				{
					Type:        "resource_link",
					URI:         fileURI,
					Name:        "test.txt",
					MimeType:    "text/plain",
					Title:       "Test File",
					Description: "A test file",
				},
			},
			contains: []string{
				"Check this file:",
				"=== Resource: test.txt ===",
				"Title: Test File",
				"Description: A test file",
				"URI: file://",
				"Type: text/plain",
				"--- File Contents ---",
				testContent,
				"--- End of File ---",
			},
		},
		{
			name: "resource_link with non-file URI",
			blocks: []contentBlock{
				{
					Type:     "resource_link",
					URI:      "https://example.com/file.txt",
					Name:     "remote.txt",
					MimeType: "text/plain",
				},
			},
			contains: []string{
				"=== Resource: remote.txt ===",
				"URI: https://example.com/file.txt",
				"[External resource - content not available]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractUserText(tt.blocks)

			if tt.expected != "" && result != tt.expected {
				t.Errorf("extractUserText() = %q, want %q", result, tt.expected)
			}
			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("extractUserText() result does not contain %q\nGot: %q", substr, result)
				}
			}
		})
	}
}
