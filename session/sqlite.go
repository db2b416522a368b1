package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps turns in a single SQLite database, one row per turn.
type SQLiteStore struct {
	db     *sql.DB
	window int
	locks  keyedMutex
}

// NewSQLiteStore opens (or creates) turns.db inside dir. Writes use
// synchronous=FULL so an appended turn survives a crash.
func NewSQLiteStore(dir string, window int) (*SQLiteStore, error) {
	if window <= 0 {
		window = 20
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}

	dsn := "file:" + filepath.Join(dir, "turns.db") +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	s := &SQLiteStore{db: db, window: window}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: err}
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		user_text TEXT NOT NULL,
		assistant_text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_text, assistant_text, created_at FROM (
			SELECT seq, user_text, assistant_text, created_at
			FROM turns
			WHERE session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`, sessionID, s.window)
	if err != nil {
		return nil, &StorageError{Op: "load", SessionID: sessionID, Err: err}
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var created int64
		if err := rows.Scan(&t.User, &t.Assistant, &created); err != nil {
			return nil, &StorageError{Op: "load", SessionID: sessionID, Err: err}
		}
		t.Timestamp = time.Unix(0, created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load", SessionID: sessionID, Err: err}
	}
	return turns, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, user_text, assistant_text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), sessionID, userText, assistantText, time.Now().UnixNano())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &StorageError{Op: "append", SessionID: sessionID, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
