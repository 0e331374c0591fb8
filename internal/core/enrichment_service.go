package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/llm"
	"newco.ai/founder-scout/internal/store"
)

const (
	emptySummaryPlaceholder = "No conversation content to summarize."
	emptyEvaluationError    = "no conversation content to evaluate"
	rawResponseExcerptLen   = 500
)

// CompletionGateway is the subset of llm.Gateway the services depend on.
type CompletionGateway interface {
	Complete(ctx context.Context, messages []store.Message, profile llm.Profile) (string, error)
	Stream(ctx context.Context, messages []store.Message, profile llm.Profile, emit func(string)) (string, error)
}

// Profiles holds the generation settings for each call purpose.
type Profiles struct {
	Conversation llm.Profile
	Summary      llm.Profile
	Evaluation   llm.Profile
}

// EnrichmentService reduces a finished transcript to a summary and an evaluation.
type EnrichmentService struct {
	gateway    CompletionGateway
	profiles   Profiles
	structured bool
	log        zerolog.Logger
}

func NewEnrichmentService(gateway CompletionGateway, profiles Profiles, structuredEvaluation bool, log zerolog.Logger) *EnrichmentService {
	return &EnrichmentService{
		gateway:    gateway,
		profiles:   profiles,
		structured: structuredEvaluation,
		log:        log,
	}
}

// Summarize returns a neutral restatement of the transcript. An empty
// transcript yields a fixed placeholder; a failed completion is an error.
func (s *EnrichmentService) Summarize(ctx context.Context, messages []store.Message) (string, error) {
	transcript := formatTranscript(messages)
	if transcript == "" {
		return emptySummaryPlaceholder, nil
	}

	prompt := []store.Message{{Role: store.RoleUser, Content: fmt.Sprintf(summaryPrompt, transcript)}}
	summary, err := s.gateway.Complete(ctx, prompt, s.profiles.Summary)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// Evaluate assesses the founder. Malformed structured output is absorbed into
// a neutral record carrying an error marker; only a failed completion call is
// returned as an error.
func (s *EnrichmentService) Evaluate(ctx context.Context, messages []store.Message) (*store.Evaluation, error) {
	transcript := formatTranscript(messages)
	if transcript == "" {
		if !s.structured {
			return &store.Evaluation{Type: store.EvaluationText, Error: emptyEvaluationError}, nil
		}
		eval := neutralEvaluation()
		eval.Error = emptyEvaluationError
		return eval, nil
	}

	template := textEvaluationPrompt
	if s.structured {
		template = structuredEvaluationPrompt
	}
	prompt := []store.Message{{Role: store.RoleUser, Content: fmt.Sprintf(template, transcript)}}
	response, err := s.gateway.Complete(ctx, prompt, s.profiles.Evaluation)
	if err != nil {
		return nil, fmt.Errorf("failed to generate evaluation: %w", err)
	}

	if !s.structured {
		return &store.Evaluation{Type: store.EvaluationText, EvaluationText: strings.TrimSpace(response)}, nil
	}
	return s.parseStructuredEvaluation(response), nil
}

type rawEvaluation struct {
	Sentiment           *string  `json:"sentiment"`
	KeyTopics           []string `json:"key_topics"`
	UserSatisfaction    *float64 `json:"user_satisfaction"`
	ConversationQuality *float64 `json:"conversation_quality"`
	MainConcerns        []string `json:"main_concerns"`
	ResolutionStatus    *string  `json:"resolution_status"`
}

func (s *EnrichmentService) parseStructuredEvaluation(response string) *store.Evaluation {
	cleaned, err := extractJSONObject(response)
	var raw rawEvaluation
	if err == nil {
		err = json.Unmarshal([]byte(cleaned), &raw)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("response", excerpt(response, 200)).Msg("Failed to parse evaluation JSON, using neutral evaluation")
		eval := neutralEvaluation()
		eval.Error = fmt.Sprintf("failed to parse evaluation JSON: %v", err)
		eval.RawResponse = excerpt(response, rawResponseExcerptLen)
		return eval
	}

	eval := neutralEvaluation()
	var missing []string
	if raw.Sentiment != nil {
		eval.Sentiment = *raw.Sentiment
	} else {
		missing = append(missing, "sentiment")
	}
	if raw.KeyTopics != nil {
		eval.KeyTopics = raw.KeyTopics
	} else {
		missing = append(missing, "key_topics")
	}
	if raw.UserSatisfaction != nil {
		eval.UserSatisfaction = *raw.UserSatisfaction
	} else {
		missing = append(missing, "user_satisfaction")
	}
	if raw.ConversationQuality != nil {
		eval.ConversationQuality = *raw.ConversationQuality
	} else {
		missing = append(missing, "conversation_quality")
	}
	if raw.MainConcerns != nil {
		eval.MainConcerns = raw.MainConcerns
	} else {
		missing = append(missing, "main_concerns")
	}
	if raw.ResolutionStatus != nil {
		eval.ResolutionStatus = *raw.ResolutionStatus
	} else {
		missing = append(missing, "resolution_status")
	}
	if len(missing) > 0 {
		s.log.Warn().Strs("fields", missing).Msg("Evaluation missing fields, filled with defaults")
	}
	return eval
}

func neutralEvaluation() *store.Evaluation {
	return &store.Evaluation{
		Type:                store.EvaluationStructured,
		Sentiment:           "neutral",
		KeyTopics:           []string{},
		UserSatisfaction:    5,
		ConversationQuality: 5,
		MainConcerns:        []string{},
		ResolutionStatus:    "unresolved",
	}
}

// formatTranscript renders the user and assistant turns as "Role: content"
// lines. It returns "" when there is nothing to render.
func formatTranscript(messages []store.Message) string {
	var lines []string
	for _, m := range messages {
		if m.Role != store.RoleUser && m.Role != store.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		label := "User"
		if m.Role == store.RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+content)
	}
	return strings.Join(lines, "\n")
}

// extractJSONObject strips code fences and any prose around the outermost
// JSON object in an LLM response.
func extractJSONObject(response string) (string, error) {
	cleaned := strings.TrimSpace(response)
	if cleaned == "" {
		return "", errors.New("empty response")
	}

	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || start >= end {
		return "", errors.New("no JSON object found in response")
	}
	return cleaned[start : end+1], nil
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
