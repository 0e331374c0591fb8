package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/metrics"
	"newco.ai/founder-scout/internal/store"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionBusy         = errors.New("a request for this session is already in progress")
	ErrSessionClosed       = errors.New("this conversation has ended; start a new conversation to continue")
	ErrInterviewInProgress = errors.New("the interview is not complete yet")
	ErrInterviewComplete   = errors.New("the interview is complete; end the conversation to save it")
	ErrNoPendingMessage    = errors.New("there is no user message waiting for a reply")
	ErrReplyPending        = errors.New("the previous message has not been answered yet")
)

type Phase string

const (
	PhaseInProgress          Phase = "IN_PROGRESS"
	PhaseCompletePendingSave Phase = "COMPLETE_PENDING_SAVE"
	PhaseSaved               Phase = "SAVED"
)

// Session is a snapshot of one interview. InterviewComplete and Ended only
// ever change from false to true; a new conversation gets a new Session.
type Session struct {
	ID                string          `json:"session_id"`
	Messages          []store.Message `json:"messages"`
	InterviewComplete bool            `json:"interview_complete"`
	Ended             bool            `json:"ended"`
	StartedAt         time.Time       `json:"started_at"`
}

func (s *Session) Phase() Phase {
	switch {
	case s.Ended:
		return PhaseSaved
	case s.InterviewComplete:
		return PhaseCompletePendingSave
	default:
		return PhaseInProgress
	}
}

// Turn is the assistant's answer to one user message.
type Turn struct {
	Reply             string `json:"reply"`
	InterviewComplete bool   `json:"interview_complete"`
	Degraded          bool   `json:"degraded"` // Reply is a placeholder
}

// Saver stores a finished transcript.
type Saver interface {
	SaveWithSummary(ctx context.Context, sessionID string, messages []store.Message, startedAt time.Time) SaveResult
}

type sessionEntry struct {
	mu         sync.Mutex
	busy       bool
	lastActive time.Time
	session    Session
}

// InterviewService owns the in-memory sessions and drives each turn.
type InterviewService struct {
	assembler     *PromptAssembler
	gateway       CompletionGateway
	profiles      Profiles
	saver         Saver
	conversations ConversationStore // nil when persistence is disabled
	log           zerolog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewInterviewService(assembler *PromptAssembler, gateway CompletionGateway, profiles Profiles, saver Saver, conversations ConversationStore, log zerolog.Logger, m *metrics.Metrics) *InterviewService {
	return &InterviewService{
		assembler:     assembler,
		gateway:       gateway,
		profiles:      profiles,
		saver:         saver,
		conversations: conversations,
		log:           log,
		metrics:       m,
		now:           time.Now,
		sessions:      make(map[string]*sessionEntry),
	}
}

// StartSession creates a fresh session in the IN_PROGRESS phase.
func (s *InterviewService) StartSession() *Session {
	now := s.now()
	entry := &sessionEntry{lastActive: now, session: Session{
		ID:        uuid.NewString(),
		Messages:  []store.Message{},
		StartedAt: now.UTC(),
	}}

	s.mu.Lock()
	s.sessions[entry.session.ID] = entry
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SetSessionsActive(n)
	s.log.Info().Str("session_id", entry.session.ID).Msg("Session started")
	return snapshot(&entry.session)
}

// ResetSession discards the session and starts a new one in its place.
func (s *InterviewService) ResetSession(sessionID string) (*Session, error) {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.log.Info().Str("session_id", sessionID).Msg("Session discarded for a new conversation")
	return s.StartSession(), nil
}

// Session returns a copy of the session's current state.
func (s *InterviewService) Session(sessionID string) (*Session, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return snapshot(&entry.session), nil
}

// AppendUserMessage adds the founder's next answer to the transcript.
func (s *InterviewService) AppendUserMessage(sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return &store.ValidationError{Field: "content", Reason: "message content cannot be empty"}
	}
	entry, err := s.entry(sessionID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := entry.acceptingInput(); err != nil {
		return err
	}
	if n := len(entry.session.Messages); n > 0 && entry.session.Messages[n-1].Role == store.RoleUser {
		return ErrReplyPending
	}
	entry.session.Messages = append(entry.session.Messages, store.Message{Role: store.RoleUser, Content: text})
	entry.lastActive = s.now()
	return nil
}

// RequestAssistantTurn produces the interviewer's reply to the latest user
// message. Completion failures are not errors: the reply is a placeholder and
// Degraded is set.
func (s *InterviewService) RequestAssistantTurn(ctx context.Context, sessionID string) (*Turn, error) {
	return s.runTurn(ctx, sessionID, func(prompt []store.Message) (string, error) {
		return s.gateway.Complete(ctx, prompt, s.profiles.Conversation)
	})
}

// StreamAssistantTurn is RequestAssistantTurn with the reply delivered to emit
// fragment by fragment.
func (s *InterviewService) StreamAssistantTurn(ctx context.Context, sessionID string, emit func(string)) (*Turn, error) {
	return s.runTurn(ctx, sessionID, func(prompt []store.Message) (string, error) {
		return s.gateway.Stream(ctx, prompt, s.profiles.Conversation, emit)
	})
}

func (s *InterviewService) runTurn(ctx context.Context, sessionID string, call func([]store.Message) (string, error)) (*Turn, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return nil, err
	}

	// The prompt is built from the history as it is now; the session stays
	// busy until the reply is appended.
	entry.mu.Lock()
	if err := entry.acceptingInput(); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	n := len(entry.session.Messages)
	if n == 0 || entry.session.Messages[n-1].Role != store.RoleUser {
		entry.mu.Unlock()
		return nil, ErrNoPendingMessage
	}
	history := append([]store.Message(nil), entry.session.Messages...)
	entry.busy = true
	entry.mu.Unlock()

	defer func() {
		entry.mu.Lock()
		entry.busy = false
		entry.lastActive = s.now()
		entry.mu.Unlock()
	}()

	prompt, err := s.assembler.Assemble(history)
	if err != nil {
		return nil, err
	}

	reply, callErr := call(prompt)
	if callErr != nil {
		s.log.Warn().Err(callErr).Str("session_id", sessionID).Msg("Assistant turn degraded to placeholder")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.session.Messages = append(entry.session.Messages, store.Message{Role: store.RoleAssistant, Content: reply})
	if !entry.session.InterviewComplete && callErr == nil && IsComplete(reply) {
		entry.session.InterviewComplete = true
		s.metrics.IncInterviewsCompleted()
		s.log.Info().Str("session_id", sessionID).Int("messages", len(entry.session.Messages)).Msg("Interview complete, waiting for save")
	}

	return &Turn{
		Reply:             reply,
		InterviewComplete: entry.session.InterviewComplete,
		Degraded:          callErr != nil,
	}, nil
}

// EndSession saves a completed interview. It is rejected while the interview
// is still in progress and after it has been saved, so each session is stored
// at most once.
func (s *InterviewService) EndSession(ctx context.Context, sessionID string) (SaveResult, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return SaveResult{}, err
	}

	entry.mu.Lock()
	switch {
	case entry.session.Ended:
		entry.mu.Unlock()
		return SaveResult{}, ErrSessionClosed
	case entry.busy:
		entry.mu.Unlock()
		return SaveResult{}, ErrSessionBusy
	case !entry.session.InterviewComplete:
		entry.mu.Unlock()
		return SaveResult{}, ErrInterviewInProgress
	}
	entry.busy = true
	messages := append([]store.Message(nil), entry.session.Messages...)
	startedAt := entry.session.StartedAt
	entry.mu.Unlock()

	result := s.saver.SaveWithSummary(ctx, sessionID, messages, startedAt)

	entry.mu.Lock()
	entry.busy = false
	entry.lastActive = s.now()
	if result.Outcome.Success() {
		entry.session.Ended = true
	}
	entry.mu.Unlock()
	return result, nil
}

// EvictIdle drops sessions untouched for longer than ttl and returns how many
// were removed. Sessions with a request in flight are kept.
func (s *InterviewService) EvictIdle(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	var evicted []string
	for id, entry := range s.sessions {
		entry.mu.Lock()
		idle := !entry.busy && entry.lastActive.Before(cutoff)
		entry.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.metrics.SetSessionsActive(n)
		s.log.Info().Int("evicted", len(evicted)).Int("active", n).Dur("ttl", ttl).Msg("Evicted idle sessions")
	}
	return len(evicted)
}

// RunJanitor calls EvictIdle every interval until ctx is done. A non-positive
// ttl or interval disables eviction.
func (s *InterviewService) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(ttl)
		}
	}
}

// GetConversation returns a stored conversation, or nil when none exists.
func (s *InterviewService) GetConversation(ctx context.Context, sessionID string) (*store.Conversation, error) {
	if s.conversations == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.conversations.Get(ctx, sessionID)
}

// ListConversations returns stored conversations, most recent first.
func (s *InterviewService) ListConversations(ctx context.Context, limit int) ([]store.Conversation, error) {
	if s.conversations == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.conversations.List(ctx, limit)
}

func (s *InterviewService) entry(sessionID string) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// acceptingInput must be called with e.mu held.
func (e *sessionEntry) acceptingInput() error {
	if e.busy {
		return ErrSessionBusy
	}
	if e.session.Ended {
		return ErrSessionClosed
	}
	if e.session.InterviewComplete {
		return ErrInterviewComplete
	}
	return nil
}

func snapshot(s *Session) *Session {
	cp := *s
	cp.Messages = append([]store.Message{}, s.Messages...)
	return &cp
}
