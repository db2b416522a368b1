// Package session persists conversation turns per session id.
//
// A session is created implicitly the first time its id is appended to and is
// never deleted. Reads return only the most recent window of turns, oldest
// first, so prompt size stays bounded however long a session grows.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/m4xw311/studyagent/config"
	"github.com/m4xw311/studyagent/errors"
)

// Roles understood by the model gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one user input paired with the assistant's final answer.
type Turn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"ts"`
}

// Messages expands turns into alternating user/assistant messages.
func Messages(turns []Turn) []Message {
	msgs := make([]Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.User},
			Message{Role: RoleAssistant, Content: t.Assistant},
		)
	}
	return msgs
}

// Store is the turn memory contract the agent depends on.
type Store interface {
	// Load returns the most recent window of turns, oldest first. An unknown
	// session yields an empty slice and no error.
	Load(ctx context.Context, sessionID string) ([]Turn, error)
	// Append durably records one turn before returning.
	Append(ctx context.Context, sessionID, userText, assistantText string) error
	Close() error
}

// StorageError reports that turn memory could not be created, read or
// written. It is the one failure the agent surfaces to its caller.
type StorageError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s %q: %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Open builds the backend selected in cfg.
func Open(cfg config.Memory) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir, cfg.Window)
	case "sqlite":
		return NewSQLiteStore(cfg.Dir, cfg.Window)
	default:
		return nil, errors.New("unknown memory backend %q (valid: file, sqlite)", cfg.Backend)
	}
}

// keyedMutex serializes work per session id while leaving different
// sessions independent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
