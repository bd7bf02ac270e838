package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/justmebob123/autonomy-sub001/bus"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteConfig configures the SQLite-backed archive.
type SQLiteConfig struct {
	// Path is the database file. Parent directories are created.
	Path string
}

// DefaultSQLiteConfig returns the standard archive location.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{Path: "messages.db"}
}

// SQLite is a durable archive backed by a SQLite database with an FTS5
// full-text index over sender, recipient, type, and payload. Messages are
// stored in their wire form, so reads rehydrate through the bus codec.
type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
}

// NewSQLite opens or creates the archive at cfg.Path.
func NewSQLite(cfg SQLiteConfig) (*SQLite, error) {
	if cfg.Path == "" {
		cfg = DefaultSQLiteConfig()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("persist: create archive dir: %w", err)
		}
	}

	db, err := openDB("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("persist: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("persist: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			ts           INTEGER NOT NULL,
			sender       TEXT NOT NULL,
			recipient    TEXT NOT NULL,
			type         TEXT NOT NULL,
			priority     INTEGER NOT NULL,
			objective_id TEXT,
			task_id      TEXT,
			issue_id     TEXT,
			raw          TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);
		CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
		CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type);
		CREATE INDEX IF NOT EXISTS idx_messages_objective ON messages(objective_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			id UNINDEXED,
			sender,
			recipient,
			type,
			payload
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Persist stores the message. Implements bus.Persister.
func (s *SQLite) Persist(msg *bus.Message) error {
	if msg == nil {
		return bus.ErrNilMessage
	}
	if s.closed.Load() {
		return ErrClosed
	}

	raw, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("persist: encode message: %w", err)
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("persist: encode payload: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("persist: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO messages
			(id, ts, sender, recipient, type, priority, objective_id, task_id, issue_id, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Timestamp.UnixNano(), msg.Sender, msg.Recipient,
		msg.Type.String(), int(msg.Priority),
		msg.ObjectiveID, msg.TaskID, msg.IssueID, string(raw))
	if err != nil {
		return fmt.Errorf("persist: insert message: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO messages_fts (id, sender, recipient, type, payload)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Recipient, msg.Type.String(), string(payload))
	if err != nil {
		return fmt.Errorf("persist: index message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit: %w", err)
	}
	return nil
}

// Recent returns the newest messages, newest first. A non-positive limit
// returns up to 100.
func (s *SQLite) Recent(limit int) ([]*bus.Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT raw FROM messages ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("persist: query recent: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Search runs an FTS5 match over sender, recipient, type, and payload and
// returns matching messages newest first. A non-positive limit returns up
// to 100.
func (s *SQLite) Search(query string, limit int) ([]*bus.Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT m.raw
		FROM messages_fts f
		JOIN messages m ON m.id = f.id
		WHERE messages_fts MATCH ?
		ORDER BY m.ts DESC
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("persist: search: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Get returns the message with the given ID, or ErrNotFound.
func (s *SQLite) Get(id string) (*bus.Message, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var raw string
	err := s.db.QueryRow(`SELECT raw FROM messages WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: get: %w", err)
	}
	return bus.UnmarshalMessage([]byte(raw))
}

// Count returns the number of archived messages.
func (s *SQLite) Count() (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("persist: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying database. Subsequent calls return ErrClosed
// from every operation.
func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func scanMessages(rows *sql.Rows) ([]*bus.Message, error) {
	var msgs []*bus.Message
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("persist: scan row: %w", err)
		}
		msg, err := bus.UnmarshalMessage([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("persist: decode archived message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: iterate rows: %w", err)
	}
	return msgs, nil
}
