// Package acp serves the agent over the Agent Client Protocol: newline
// delimited JSON-RPC 2.0 on stdio.
package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC
// It implements a minimal subset of ACP:
// - initialize
// - session/new
// - session/load (replays stored turns)
// - session/prompt (emits session/update notifications with tool_call, tool_result and agent_message_chunk)
// Nothing but JSON-RPC messages is written to out; logs go to logger.
func Run(ctx context.Context, a *agent.Agent, in *bufio.Reader, out *bufio.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	server := &acpServer{
		ctx:          ctx,
		agent:        a,
		sessions:     make(map[string]bool),
		StdinReader:  in,
		StdoutWriter: out,
		log:          logger.With("component", "acp"),
	}
	server.log.Debug("starting ACP server")

	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				server.log.Debug("EOF received, exiting")
				return nil
			}
			// If framing is broken, there isn't a safe way to continue.
			return errors.Wrapf(err, "ACP: read error")
		}
		if len(payload) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			server.log.Warn("JSON parse error", "error", err)
			_ = server.writeResponseError(nil, codeParseError, "Parse error", nil)
			continue
		}

		server.log.Debug("dispatching", "method", req.Method, "id", req.ID)
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			server.handleSessionPrompt(&req)
		default:
			_ = server.writeResponseError(req.ID, codeMethodNotFound, "Method not found", nil)
		}
	}
}

// ---- Minimal ACP handling types ----

// jsonrpcRequest represents a JSON-RPC 2.0 request message
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse represents a JSON-RPC 2.0 response message
type jsonrpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonrpcError `json:"error,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

// acpServer tracks the sessions this client has opened and serializes
// writes to stdout.
type acpServer struct {
	ctx          context.Context
	agent        *agent.Agent
	sessions     map[string]bool
	sessionsLock sync.Mutex

	StdinReader  *bufio.Reader
	StdoutWriter *bufio.Writer
	writeLock    sync.Mutex
	log          *slog.Logger
}

// readFramedMessage reads a single newline-delimited JSON-RPC payload.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, err := s.StdinReader.ReadBytes('\n')
	if err != nil && !(err == io.EOF && len(line) > 0) {
		return nil, err
	}
	return []byte(strings.TrimSpace(string(line))), nil
}

// writeFramedJSON serializes and writes one JSON-RPC message followed by a newline.
func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		s.log.Error("marshal error", "error", err)
		return errors.Wrapf(err, "failed to serialize JSON-RPC message")
	}
	s.log.Log(s.ctx, config.LevelTrace, "writing message", "payload", string(data))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.StdoutWriter.Write(data); err != nil {
		return err
	}
	if err := s.StdoutWriter.WriteByte('\n'); err != nil {
		return err
	}
	return s.StdoutWriter.Flush()
}

func (s *acpServer) writeResponseOK(id any, result any) error {
	if result == nil {
		result = json.RawMessage("null")
	}
	return s.writeFramedJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.log.Debug("error response", "code", code, "message", msg, "data", data)
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *acpServer) writeNotification(method string, params any) error {
	return s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *acpServer) decodeParams(req *jsonrpcRequest, v any) bool {
	if len(req.Params) == 0 {
		return true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return false
	}
	return true
}

// ---- Handlers ----

// handleInitialize reports protocol version 1 with session loading and
// text-only prompts.
func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	var p struct {
		ProtocolVersion int             `json:"protocolVersion"`
		ClientCaps      json.RawMessage `json:"clientCapabilities,omitempty"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	s.log.Debug("initialize", "clientProtocolVersion", p.ProtocolVersion)

	_ = s.writeResponseOK(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

// handleSessionNew opens a session under a fresh UUID. Nothing is stored
// until its first prompt completes.
func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	var p struct {
		Cwd string `json:"cwd"`
	}
	if !s.decodeParams(req, &p) {
		return
	}

	sid := uuid.NewString()
	s.sessionsLock.Lock()
	s.sessions[sid] = true
	s.sessionsLock.Unlock()
	s.log.Info("session created", "session", sid, "cwd", p.Cwd)

	_ = s.writeResponseOK(req.ID, map[string]any{"sessionId": sid})
}

// handleSessionLoad replays the stored window of turns as user_message_chunk
// and agent_message_chunk notifications, then returns null.
func (s *acpServer) handleSessionLoad(req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
		Cwd       string `json:"cwd"`
	}
	if !s.decodeParams(req, &p) {
		return
	}
	if p.SessionID == "" {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "missing sessionId")
		return
	}

	turns, err := s.agent.History(s.ctx, p.SessionID)
	if err != nil {
		s.log.Error("failed to load session", "session", p.SessionID, "error", err)
		_ = s.writeResponseError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}

	s.sessionsLock.Lock()
	s.sessions[p.SessionID] = true
	s.sessionsLock.Unlock()

	s.log.Info("replaying session", "session", p.SessionID, "turns", len(turns))
	for _, t := range turns {
		_ = s.sendMessageChunk(p.SessionID, "user_message_chunk", t.User)
		_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", t.Assistant)
	}
	_ = s.writeResponseOK(req.ID, nil)
}

// contentBlock represents a content block in ACP prompt requests.
// Only text and resource_link blocks are understood.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// ResourceLink fields
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// handleSessionPrompt runs the agent once for the prompt, reports each tool
// call and its result, sends the answer as one agent_message_chunk and ends
// with stopReason end_turn.
func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if !s.decodeParams(req, &p) {
		return
	}

	s.sessionsLock.Lock()
	ok := s.sessions[p.SessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)
	if strings.TrimSpace(userText) == "" {
		_ = s.writeResponseError(req.ID, codeInvalidParams, "Invalid params", "prompt has no text")
		return
	}

	out, err := s.agent.Run(s.ctx, userText, p.SessionID)
	if err != nil {
		if s.ctx.Err() != nil {
			_ = s.writeResponseOK(req.ID, map[string]any{"stopReason": "cancelled"})
			return
		}
		var se *session.StorageError
		if errors.As(err, &se) {
			s.log.Error("turn memory failure", "session", p.SessionID, "error", err)
		}
		_ = s.writeResponseError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}

	for i, tc := range out.ToolCalls {
		id := fmt.Sprintf("call_%d", i+1)
		_ = s.sendToolCallNotification(p.SessionID, id, tc)
		_ = s.sendToolResultNotification(p.SessionID, id, tc.Result)
	}
	_ = s.sendMessageChunk(p.SessionID, "agent_message_chunk", out.Text)

	_ = s.writeResponseOK(req.ID, map[string]any{"stopReason": "end_turn"})
}

// sendToolCallNotification emits a session/update notification for a tool call
func (s *acpServer) sendToolCallNotification(sessionID, toolCallID string, tc agent.ToolCallRecord) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_call",
			"toolCall": map[string]any{
				"id":   toolCallID,
				"name": tc.Tool,
				"args": tc.Args,
			},
		},
	})
}

// sendToolResultNotification emits a session/update notification for a tool result
func (s *acpServer) sendToolResultNotification(sessionID, toolCallID, result string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_result",
			"toolResult": map[string]any{
				"toolCallId": toolCallID,
				"result":     result,
			},
		},
	})
}

// sendMessageChunk emits a session/update notification carrying text of the
// given kind (user_message_chunk or agent_message_chunk).
func (s *acpServer) sendMessageChunk(sessionID, kind, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": kind,
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

// readFileFromURI attempts to read file contents from a file:// URI
func readFileFromURI(uri string) (string, error) {
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if parsedURL.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", parsedURL.Scheme)
	}
	content, err := os.ReadFile(parsedURL.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

// maxResourceBytes limits how much of a linked file is inlined into a prompt.
const maxResourceBytes = 50000

// extractUserText creates a single string from all content blocks
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			var sb strings.Builder
			fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				fmt.Fprintf(&sb, "Title: %s\n", b.Title)
			}
			if b.Description != "" {
				fmt.Fprintf(&sb, "Description: %s\n", b.Description)
			}
			fmt.Fprintf(&sb, "URI: %s\n", b.URI)
			if b.MimeType != "" {
				fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
			}
			if b.Size != nil {
				fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileFromURI(b.URI)
				if err != nil {
					fmt.Fprintf(&sb, "\n[Error reading file: %v]\n", err)
				} else {
					if len(content) > maxResourceBytes {
						content = content[:maxResourceBytes] + "\n\n[... truncated to 50KB ...]"
					}
					fmt.Fprintf(&sb, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				sb.WriteString("\n[External resource - content not available]\n")
			}

			sb.WriteString("=== End Resource ===\n")
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, "\n")
}
