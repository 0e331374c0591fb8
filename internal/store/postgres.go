package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes conversations to a hosted Postgres table (for example
// the database behind a Supabase project).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects using dsn. A non-empty key overrides the password
// in the DSN so the service key can be kept out of the URL.
func NewPostgresStore(ctx context.Context, dsn, key string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if key != "" {
		cfg.ConnConfig.Password = key
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id BIGSERIAL PRIMARY KEY,
        session_id TEXT UNIQUE NOT NULL,
        messages JSONB NOT NULL,
        summary TEXT,
        evaluation JSONB,
        created_at TIMESTAMPTZ NOT NULL,
        ended_at TIMESTAMPTZ NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations (created_at DESC);
    `
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) InsertConversation(ctx context.Context, conv *Conversation) error {
	messagesJSON, evaluationJSON, err := encodeConversation(conv)
	if err != nil {
		return err
	}

	var evaluation *string
	if evaluationJSON != nil {
		v := string(evaluationJSON)
		evaluation = &v
	}

	err = s.pool.QueryRow(ctx, `
        INSERT INTO conversations (session_id, messages, summary, evaluation, created_at, ended_at)
        VALUES ($1, $2::jsonb, $3, $4::jsonb, $5, $6)
        ON CONFLICT (session_id) DO NOTHING
        RETURNING id`,
		conv.SessionID, string(messagesJSON), conv.Summary, evaluation, conv.CreatedAt.UTC(), conv.EndedAt.UTC(),
	).Scan(&conv.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadySaved
		}
		return fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, session_id, messages, summary, evaluation, created_at, ended_at FROM conversations WHERE session_id = $1",
		sessionID)
	conv, err := scanPostgresConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, session_id, messages, summary, evaluation, created_at, ended_at FROM conversations ORDER BY created_at DESC, id DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		conv, err := scanPostgresConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func scanPostgresConversation(row pgx.Row) (*Conversation, error) {
	var (
		conv           Conversation
		messagesJSON   []byte
		evaluationJSON []byte
	)
	if err := row.Scan(&conv.ID, &conv.SessionID, &messagesJSON, &conv.Summary, &evaluationJSON, &conv.CreatedAt, &conv.EndedAt); err != nil {
		return nil, err
	}
	if err := decodeConversation(&conv, messagesJSON, evaluationJSON); err != nil {
		return nil, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.EndedAt = conv.EndedAt.UTC()
	return &conv, nil
}
