package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/llm"
	"github.com/m4xw311/studyagent/session"
	"github.com/m4xw311/studyagent/tools"
)

func newServer(t *testing.T, client llm.LLMClient) (*httptest.Server, session.Store) {
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
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := agent.New(cfg, client, store, registry, logger)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(handleWS(a, logger))
	t.Cleanup(srv.Close)
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSAnswers(t *testing.T) {
	client := llm.NewScriptedClient(
		llm.Reply{Text: `{"action":"tool","tool":"multiply","args":{"a":12.5,"b":8}}`},
		llm.Reply{Text: `{"action":"finish","final":"100"}`},
		llm.Reply{Text: "It is 100."},
	)
	srv, store := newServer(t, client)
	conn := dial(t, srv, "?session=ws-1")

	var hello reply
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != "session" || hello.Session != "ws-1" {
		t.Errorf("hello = %+v", hello)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"text":"what is 12.5 times 8?"}`)); err != nil {
		t.Fatal(err)
	}
	var answer reply
	if err := conn.ReadJSON(&answer); err != nil {
		t.Fatal(err)
	}
	if answer.Type != "answer" || answer.Text != "It is 100." {
		t.Errorf("answer = %+v", answer)
	}
	if len(answer.ToolCalls) != 1 || answer.ToolCalls[0].Result != "100" {
		t.Errorf("tool calls = %+v", answer.ToolCalls)
	}

	turns, _ := store.Load(context.Background(), "ws-1")
	if len(turns) != 1 || turns[0].User != "what is 12.5 times 8?" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestWSFreshSessionAndEmptyMessage(t *testing.T) {
	srv, _ := newServer(t, &llm.MockLLMClient{})
	conn := dial(t, srv, "")

	var hello reply
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(hello.Session); err != nil {
		t.Errorf("session %q is not a UUID", hello.Session)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("   "))
	var resp reply
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "error" {
		t.Errorf("resp = %+v", resp)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("plain text question"))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "answer" || resp.Text == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestParseRequest(t *testing.T) {
	tests := map[string]string{
		`{"text":" hi "}`: "hi",
		"plain":           "plain",
		"{not json":       "{not json",
		"  ":              "",
	}
	for in, want := range tests {
		if got := parseRequest([]byte(in)); got != want {
			t.Errorf("parseRequest(%q) = %q, want %q", in, got, want)
		}
	}
}
