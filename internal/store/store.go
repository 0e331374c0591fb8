package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/metrics"
)

const (
	maxPutAttempts   = 3
	defaultListLimit = 100
)

// ErrAlreadySaved is returned by a backend when a conversation with the same
// session_id has already been written.
var ErrAlreadySaved = errors.New("conversation already saved for this session")

// PersistenceError means a write was attempted and did not succeed after
// every retry. The caller should offer the user a way to try again.
type PersistenceError struct {
	Attempts int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to save conversation after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Backend is a table store holding one row per finished session.
type Backend interface {
	InsertConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, sessionID string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	Close() error
}

// Store validates and retries writes in front of a Backend.
type Store struct {
	backend   Backend
	baseDelay time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

type Option func(*Store)

// WithSleep replaces the wait between attempts. Tests use it to skip real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Store) { s.sleep = sleep }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(backend Backend, baseDelay time.Duration, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		baseDelay: baseDelay,
		log:       log,
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Put writes conv, filling CreatedAt and EndedAt with the current UTC time when
// they are zero. Invalid input fails before any backend call. Backend errors are
// retried with exponential backoff; ErrAlreadySaved is returned as is.
func (s *Store) Put(ctx context.Context, conv Conversation) error {
	if strings.TrimSpace(conv.SessionID) == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	allowed := []Role{RoleUser, RoleAssistant, RoleSystem}
	if err := ValidateMessages(conv.Messages, allowed, nil); err != nil {
		return err
	}

	now := s.now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.EndedAt.IsZero() {
		conv.EndedAt = now
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.EndedAt = conv.EndedAt.UTC()

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxPutAttempts; attempt++ {
		attempts++
		err := s.backend.InsertConversation(ctx, &conv)
		if err == nil {
			s.metrics.ObserveStoreWrite("ok")
			s.log.Info().Str("session_id", conv.SessionID).Int("attempt", attempt+1).Int("messages", len(conv.Messages)).Msg("Conversation saved")
			return nil
		}
		if errors.Is(err, ErrAlreadySaved) {
			s.metrics.ObserveStoreWrite("duplicate")
			s.log.Warn().Str("session_id", conv.SessionID).Msg("Conversation already saved, skipping duplicate insert")
			return err
		}

		lastErr = err
		s.metrics.ObserveStoreWrite("error")
		s.log.Warn().Err(err).Str("session_id", conv.SessionID).Int("attempt", attempt+1).Msg("Conversation write failed")

		if attempt == maxPutAttempts-1 {
			break
		}
		if err := s.sleep(ctx, s.baseDelay*time.Duration(1<<attempt)); err != nil {
			lastErr = err
			break
		}
	}

	s.log.Error().Err(lastErr).Str("session_id", conv.SessionID).Msg("Giving up on conversation write")
	return &PersistenceError{Attempts: attempts, Err: lastErr}
}

// Get returns nil, nil when no conversation exists for sessionID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Conversation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	return s.backend.GetConversation(ctx, sessionID)
}

// List returns up to limit conversations, most recently created first.
func (s *Store) List(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.backend.ListConversations(ctx, limit)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
