// Command ws_bridge serves the study assistant over WebSocket. Each
// connection is one session; every text message is one question.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m4xw311/studyagent/agent"
	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
	"github.com/m4xw311/studyagent/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// request is the JSON form of an incoming message. Plain text is accepted too.
type request struct {
	Text string `json:"text"`
}

type reply struct {
	Type      string                 `json:"type"`
	Session   string                 `json:"session,omitempty"`
	Text      string                 `json:"text,omitempty"`
	ToolCalls []agent.ToolCallRecord `json:"tool_calls,omitempty"`
	LatencyMS int64                  `json:"latency_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func main() {
	addr := flag.String("addr", ":8080", "Address to listen on")
	configFlag := flag.String("config", "", "Read configuration from this file only")
	toolsetFlag := flag.String("t", "default", "Toolset to use")
	flag.Parse()

	if err := serve(*addr, *configFlag, *toolsetFlag); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func serve(addr, configPath, toolset string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	a, store, err := agent.Setup(ctx, cfg, toolset, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handleWS(a, logger))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("WebSocket server running", "url", "ws://localhost"+addr+"/ws")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// handleWS runs one session per connection. The session id comes from the
// "session" query parameter or is a fresh UUID.
func handleWS(a *agent.Agent, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("upgrade error", "error", err)
			return
		}
		defer conn.Close()

		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		log := logger.With("session", sessionID, "remote", r.RemoteAddr)
		log.Info("connection opened")

		if err := conn.WriteJSON(reply{Type: "session", Session: sessionID}); err != nil {
			log.Warn("WS write error", "error", err)
			return
		}

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("WS read error", "error", err)
				}
				log.Info("connection closed")
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}

			text := parseRequest(msg)
			if text == "" {
				if err := conn.WriteJSON(reply{Type: "error", Error: "empty message"}); err != nil {
					return
				}
				continue
			}

			out, err := a.Run(r.Context(), text, sessionID)
			var resp reply
			if err != nil {
				var se *session.StorageError
				if errors.As(err, &se) {
					log.Error("turn memory failure", "error", err)
					resp = reply{Type: "error", Session: sessionID, Error: "the conversation could not be saved"}
				} else {
					// Only cancellation is left; the client is gone.
					return
				}
			} else {
				resp = reply{
					Type:      "answer",
					Session:   sessionID,
					Text:      out.Text,
					ToolCalls: out.ToolCalls,
					LatencyMS: out.Latency.Milliseconds(),
				}
			}
			if err := conn.WriteJSON(resp); err != nil {
				log.Warn("WS write error", "error", err)
				return
			}
		}
	}
}

func parseRequest(msg []byte) string {
	trimmed := strings.TrimSpace(string(msg))
	if strings.HasPrefix(trimmed, "{") {
		var req request
		if err := json.Unmarshal([]byte(trimmed), &req); err == nil {
			return strings.TrimSpace(req.Text)
		}
	}
	return trimmed
}
