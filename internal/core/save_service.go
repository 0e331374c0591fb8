package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/metrics"
	"newco.ai/founder-scout/internal/store"
)

// ErrPersistenceDisabled is reported when no conversation store is configured.
var ErrPersistenceDisabled = errors.New("conversation storage is not configured")

// ConversationStore is the subset of store.Store used by the services.
type ConversationStore interface {
	Put(ctx context.Context, conv store.Conversation) error
	Get(ctx context.Context, sessionID string) (*store.Conversation, error)
	List(ctx context.Context, limit int) ([]store.Conversation, error)
}

// Enricher produces the summary and evaluation of a transcript.
type Enricher interface {
	Summarize(ctx context.Context, messages []store.Message) (string, error)
	Evaluate(ctx context.Context, messages []store.Message) (*store.Evaluation, error)
}

type SaveOutcome int

const (
	// SaveFailed means nothing was stored.
	SaveFailed SaveOutcome = iota
	// SavedWithoutEnrichment means the transcript was stored but the summary,
	// the evaluation, or both could not be generated.
	SavedWithoutEnrichment
	Saved
)

func (o SaveOutcome) String() string {
	switch o {
	case Saved:
		return "saved"
	case SavedWithoutEnrichment:
		return "saved_without_enrichment"
	default:
		return "failed"
	}
}

// Success reports whether the transcript is durably stored.
func (o SaveOutcome) Success() bool {
	return o != SaveFailed
}

type SaveResult struct {
	Outcome       SaveOutcome
	SummaryErr    error
	EvaluationErr error
	Err           error
}

// SaveService turns a finished transcript into one stored conversation row.
type SaveService struct {
	enricher Enricher
	store    ConversationStore // nil when persistence is disabled
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewSaveService(enricher Enricher, conversations ConversationStore, log zerolog.Logger, m *metrics.Metrics) *SaveService {
	return &SaveService{
		enricher: enricher,
		store:    conversations,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// SaveWithSummary generates the summary, then the evaluation, then stores the
// transcript with whatever enrichment was obtained. Enrichment failures are
// logged and absorbed; only a failed store write fails the save.
func (s *SaveService) SaveWithSummary(ctx context.Context, sessionID string, messages []store.Message, startedAt time.Time) SaveResult {
	result := s.save(ctx, sessionID, messages, startedAt)
	s.metrics.ObserveSave(result.Outcome.String())
	return result
}

func (s *SaveService) save(ctx context.Context, sessionID string, messages []store.Message, startedAt time.Time) SaveResult {
	log := s.log.With().Str("session_id", sessionID).Logger()

	if len(messages) == 0 {
		log.Warn().Msg("Refusing to save an empty conversation")
		return SaveResult{Outcome: SaveFailed, Err: &store.ValidationError{Field: "messages", Reason: "must contain at least one message"}}
	}
	if s.store == nil {
		log.Warn().Msg("Conversation storage is not configured, conversation not saved")
		return SaveResult{Outcome: SaveFailed, Err: ErrPersistenceDisabled}
	}

	var result SaveResult

	var summary *string
	text, err := s.enricher.Summarize(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Msg("Summary generation failed, saving without summary")
		result.SummaryErr = err
	} else {
		summary = &text
	}

	evaluation, err := s.enricher.Evaluate(ctx, messages)
	if err != nil {
		log.Warn().Err(err).Msg("Evaluation generation failed, saving without evaluation")
		result.EvaluationErr = err
		evaluation = nil
	}

	err = s.store.Put(ctx, store.Conversation{
		SessionID:  sessionID,
		Messages:   messages,
		Summary:    summary,
		Evaluation: evaluation,
		CreatedAt:  startedAt,
		EndedAt:    s.now(),
	})
	switch {
	case errors.Is(err, store.ErrAlreadySaved):
		log.Info().Msg("Conversation was already stored")
		result.Outcome = Saved
		return result
	case err != nil:
		log.Error().Err(err).Msg("Failed to save conversation")
		result.Outcome = SaveFailed
		result.Err = err
		return result
	}

	if summary == nil || evaluation == nil {
		result.Outcome = SavedWithoutEnrichment
	} else {
		result.Outcome = Saved
	}
	log.Info().Str("outcome", result.Outcome.String()).Msg("Conversation saved")
	return result
}
