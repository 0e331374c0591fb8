package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Fixed-width UTC timestamps so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT UNIQUE NOT NULL,
        messages TEXT NOT NULL,   -- JSON array of {role, content}
        summary TEXT,
        evaluation TEXT,          -- JSON object
        created_at TEXT NOT NULL, -- ISO-8601 UTC
        ended_at TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations (created_at DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) InsertConversation(ctx context.Context, conv *Conversation) error {
	messagesJSON, evaluationJSON, err := encodeConversation(conv)
	if err != nil {
		return err
	}

	stmt, err := s.db.PrepareContext(ctx, `
        INSERT INTO conversations (session_id, messages, summary, evaluation, created_at, ended_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx,
		conv.SessionID,
		string(messagesJSON),
		conv.Summary,
		sql.NullString{String: string(evaluationJSON), Valid: evaluationJSON != nil},
		conv.CreatedAt.UTC().Format(sqliteTimeLayout),
		conv.EndedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadySaved
	}
	if conv.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read conversation id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, messages, summary, evaluation, created_at, ended_at FROM conversations WHERE session_id = ?",
		sessionID)
	conv, err := scanSQLiteConversation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, messages, summary, evaluation, created_at, ended_at FROM conversations ORDER BY created_at DESC, id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		conv, err := scanSQLiteConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteConversation(row rowScanner) (*Conversation, error) {
	var (
		conv           Conversation
		messagesJSON   string
		summary        sql.NullString
		evaluationJSON sql.NullString
		createdAt      string
		endedAt        string
	)
	if err := row.Scan(&conv.ID, &conv.SessionID, &messagesJSON, &summary, &evaluationJSON, &createdAt, &endedAt); err != nil {
		return nil, err
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}

	var evaluation []byte
	if evaluationJSON.Valid {
		evaluation = []byte(evaluationJSON.String)
	}
	if err := decodeConversation(&conv, []byte(messagesJSON), evaluation); err != nil {
		return nil, err
	}

	var err error
	if conv.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	if conv.EndedAt, err = time.Parse(sqliteTimeLayout, endedAt); err != nil {
		return nil, fmt.Errorf("failed to parse ended_at %q: %w", endedAt, err)
	}
	return &conv, nil
}

// encodeConversation returns the messages JSON and the evaluation JSON, the
// latter nil when there is no evaluation.
func encodeConversation(conv *Conversation) ([]byte, []byte, error) {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal messages: %w", err)
	}
	if conv.Evaluation == nil {
		return messagesJSON, nil, nil
	}
	evaluationJSON, err := json.Marshal(conv.Evaluation)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal evaluation: %w", err)
	}
	return messagesJSON, evaluationJSON, nil
}

func decodeConversation(conv *Conversation, messagesJSON, evaluationJSON []byte) error {
	if err := json.Unmarshal(messagesJSON, &conv.Messages); err != nil {
		return fmt.Errorf("failed to unmarshal messages for session %s: %w", conv.SessionID, err)
	}
	if len(evaluationJSON) == 0 {
		return nil
	}
	var evaluation Evaluation
	if err := json.Unmarshal(evaluationJSON, &evaluation); err != nil {
		return fmt.Errorf("failed to unmarshal evaluation for session %s: %w", conv.SessionID, err)
	}
	conv.Evaluation = &evaluation
	return nil
}
