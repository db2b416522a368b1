package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps one append-only JSON-lines file per session.
type FileStore struct {
	dir    string
	window int
	locks  keyedMutex
}

// NewFileStore creates dir if needed and returns a store that reads at most
// window turns per session.
func NewFileStore(dir string, window int) (*FileStore, error) {
	if window <= 0 {
		window = 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}
	return &FileStore{dir: dir, window: window}, nil
}

// Dir is the directory holding the session files.
func (s *FileStore) Dir() string { return s.dir }

// sessionPath escapes the id so any opaque string maps to a single file
// inside dir.
func (s *FileStore) sessionPath(sessionID string) string {
	return filepath.Join(s.dir, url.PathEscape(sessionID)+".jsonl")
}

func (s *FileStore) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.sessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []Turn{}, nil
		}
		return nil, &StorageError{Op: "load", SessionID: sessionID, Err: err}
	}
	defer f.Close()

	// Ring of the last window turns.
	ring := make([]Turn, 0, s.window)
	start := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var t Turn
			// A torn final line from a crash mid-write is skipped.
			if jsonErr := json.Unmarshal(line, &t); jsonErr == nil {
				if len(ring) < s.window {
					ring = append(ring, t)
				} else {
					ring[start] = t
					start = (start + 1) % s.window
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &StorageError{Op: "load", SessionID: sessionID, Err: err}
		}
	}

	turns := make([]Turn, 0, len(ring))
	turns = append(turns, ring[start:]...)
	turns = append(turns, ring[:start]...)
	return turns, nil
}

func (s *FileStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(Turn{User: userText, Assistant: assistantText, Timestamp: time.Now()})
	if err != nil {
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	line = append(line, '\n')

	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	f, err := os.OpenFile(s.sessionPath(sessionID), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	torn, err := endsTorn(f)
	if err != nil {
		f.Close()
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	if torn {
		// Terminate the torn record so this one starts on its own line.
		line = append([]byte{'\n'}, line...)
	}
	// One write per turn so a record is either whole or a torn tail.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &StorageError{Op: "sync", SessionID: sessionID, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	return nil
}

// endsTorn reports whether f is non-empty and its last byte is not a newline,
// which is what a crash in the middle of a write leaves behind.
func endsTorn(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (s *FileStore) Close() error { return nil }
