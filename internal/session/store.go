// Package session persists conversation transcripts. Append-only: each
// message is one durable row, so a crash mid-turn loses at most the
// in-flight message.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ricmello/garra/internal/llm"
)

// DefaultMaxMessages caps how much history Load returns.
const DefaultMaxMessages = 50

// Store is the SQLite-backed session transcript store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (or creates) the session database at the given path.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id    TEXT NOT NULL,
		session_id TEXT NOT NULL,
		payload    TEXT NOT NULL,
		timestamp  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(user_id, session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append durably records one message. Failures are logged and swallowed so
// a transcript hiccup never aborts a running turn.
func (s *Store) Append(userID, sessionID string, msg llm.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("session.append_failed", "user_id", userID, "error", err)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (user_id, session_id, payload, timestamp) VALUES (?, ?, ?, ?)`,
		userID, sessionID, string(payload), time.Now().UTC(),
	)
	if err != nil {
		s.logger.Error("session.append_failed", "user_id", userID, "error", err)
	}
}

// Load returns the last max messages of a session in original order. The
// timestamp bookkeeping column is internal and never part of the result.
func (s *Store) Load(userID, sessionID string, max int) ([]llm.Message, error) {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	rows, err := s.db.Query(
		`SELECT payload FROM (
			SELECT id, payload FROM messages
			WHERE user_id = ? AND session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`,
		userID, sessionID, max,
	)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg llm.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			// Skip corrupted rows rather than losing the whole session.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Count returns the number of messages in a session.
func (s *Store) Count(userID, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Clear removes a session's transcript.
func (s *Store) Clear(userID, sessionID string) error {
	_, err := s.db.Exec(
		`DELETE FROM messages WHERE user_id = ? AND session_id = ?`,
		userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info("session.cleared", "user_id", userID, "session_id", sessionID)
	return nil
}

// ListSessions returns the session ids a user has transcripts for.
func (s *Store) ListSessions(userID string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT session_id FROM messages WHERE user_id = ? ORDER BY session_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
