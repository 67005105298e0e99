package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"voicemail-bridge/internal/model/call"
	"voicemail-bridge/internal/model/inbox"
)

const cursorKey = "message_cursor"

// Store is the sqlite-backed persistence layer: the message cursor, the
// deduplicated mailbox and the per-call sessions all live here.
//
// Writes are serialized through a single connection; the read-modify-write
// sequences (session creation, turn appends) run inside transactions.
type Store struct {
	db *sql.DB
}

// Open creates the database file if needed and initializes the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: db path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id INTEGER NOT NULL UNIQUE,
			channel_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			ts INTEGER NOT NULL,
			text TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(is_read, ts);`,
		`CREATE TABLE IF NOT EXISTS call_sessions (
			call_sid TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			messages_json TEXT NOT NULL,
			conversation_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO state(key, value) VALUES ('` + cursorKey + `', '0');`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

// Ping answers the readiness probe with a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Cursor returns the highest external message id observed so far.
func (s *Store) Cursor(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT CAST(value AS INTEGER) FROM state WHERE key = ?`, cursorKey,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read cursor: %w", err)
	}
	return value, nil
}

// AdvanceCursor moves the cursor forward. It never moves backward; a stale
// value is ignored so re-fetching overlapping batches stays safe.
func (s *Store) AdvanceCursor(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE state SET value = ? WHERE key = ? AND CAST(value AS INTEGER) < ?`,
		fmt.Sprintf("%d", id), cursorKey, id,
	)
	if err != nil {
		return fmt.Errorf("store: advance cursor: %w", err)
	}
	return nil
}

// UpsertMessage inserts a message unless its external id is already present.
// Returns false when the row already existed.
func (s *Store) UpsertMessage(ctx context.Context, m inbox.Message) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages(external_id, channel_id, sender, ts, text)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ExternalID, m.ChannelID, m.Sender, m.Timestamp.UTC().Unix(), m.Text,
	)
	if err != nil {
		return false, fmt.Errorf("store: upsert message: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: upsert message rows: %w", err)
	}
	return inserted > 0, nil
}

// ListUnread returns unread messages newest first, optionally filtered to a
// single channel. channelID 0 means no filter.
func (s *Store) ListUnread(ctx context.Context, limit int, channelID int64) ([]inbox.Message, error) {
	query := `SELECT id, external_id, channel_id, sender, ts, text FROM messages WHERE is_read = 0`
	args := []any{}
	if channelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY ts DESC, external_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list unread: %w", err)
	}
	defer rows.Close()

	var result []inbox.Message
	for rows.Next() {
		var m inbox.Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.ChannelID, &m.Sender, &ts, &m.Text); err != nil {
			return nil, fmt.Errorf("store: scan unread row: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate unread rows: %w", err)
	}
	return result, nil
}

// UnreadCount reports how many unread messages match the channel filter.
func (s *Store) UnreadCount(ctx context.Context, channelID int64) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE is_read = 0`
	args := []any{}
	if channelID != 0 {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count unread: %w", err)
	}
	return count, nil
}

// MarkRead flips the read flag for the given internal message ids.
func (s *Store) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := markReadQuery(ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: mark read: %w", err)
	}
	return nil
}

func markReadQuery(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return `UPDATE messages SET is_read = 1 WHERE id IN (` + strings.Join(placeholders, ",") + `)`, args
}

// CreateSession stores a new session for the call and marks the snapshot
// messages read in the same transaction. If a session already exists for the
// call SID the whole operation is a silent no-op: the existing summary stays
// untouched and no read flags change, which is what makes a redelivered
// incoming webhook idempotent.
func (s *Store) CreateSession(ctx context.Context, callSID, summary string, messages []inbox.Message) error {
	snapshot, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("store: marshal message snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin create session: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO call_sessions(call_sid, summary, messages_json, conversation_json, created_at)
		 VALUES (?, ?, ?, '[]', ?)`,
		callSID, summary, string(snapshot), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert session: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: insert session rows: %w", err)
	}

	if inserted > 0 && len(messages) > 0 {
		ids := make([]int64, len(messages))
		for i, m := range messages {
			ids[i] = m.ID
		}
		query, args := markReadQuery(ids)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("store: mark snapshot read: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit create session: %w", err)
	}
	return nil
}

// GetSession loads the session for a call SID. The second return value is
// false when no session exists.
func (s *Store) GetSession(ctx context.Context, callSID string) (call.Session, bool, error) {
	var (
		session          call.Session
		messagesJSON     string
		conversationJSON string
		createdAtMilli   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, messages_json, conversation_json, created_at
		 FROM call_sessions WHERE call_sid = ?`, callSID,
	).Scan(&session.Summary, &messagesJSON, &conversationJSON, &createdAtMilli)
	if errors.Is(err, sql.ErrNoRows) {
		return call.Session{}, false, nil
	}
	if err != nil {
		return call.Session{}, false, fmt.Errorf("store: get session: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return call.Session{}, false, fmt.Errorf("store: decode message snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(conversationJSON), &session.Conversation); err != nil {
		return call.Session{}, false, fmt.Errorf("store: decode conversation: %w", err)
	}

	session.CallSID = callSID
	session.CreatedAt = time.UnixMilli(createdAtMilli).UTC()
	return session, true, nil
}

// AppendTurn appends one turn to the session's conversation log and returns
// the updated log. A missing session yields an empty log and no error.
func (s *Store) AppendTurn(ctx context.Context, callSID, role, text string) ([]call.Turn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin append turn: %w", err)
	}
	defer tx.Rollback()

	var conversationJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT conversation_json FROM call_sessions WHERE call_sid = ?`, callSID,
	).Scan(&conversationJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read conversation: %w", err)
	}

	var turns []call.Turn
	if err := json.Unmarshal([]byte(conversationJSON), &turns); err != nil {
		return nil, fmt.Errorf("store: decode conversation: %w", err)
	}
	turns = append(turns, call.Turn{Role: role, Text: text})

	updated, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("store: encode conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE call_sessions SET conversation_json = ? WHERE call_sid = ?`,
		string(updated), callSID,
	); err != nil {
		return nil, fmt.Errorf("store: write conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append turn: %w", err)
	}
	return turns, nil
}

// SweepExpired deletes every session older than the TTL and returns how many
// were removed.
func (s *Store) SweepExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM call_sessions WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired rows: %w", err)
	}
	return removed, nil
}
