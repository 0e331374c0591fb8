package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the durable record of one finished interview session.
type Conversation struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"session_id"`
	Messages   []Message   `json:"messages"`
	Summary    *string     `json:"summary"`    // Nullable
	Evaluation *Evaluation `json:"evaluation"` // Nullable
	CreatedAt  time.Time   `json:"created_at"`
	EndedAt    time.Time   `json:"ended_at"`
}

type EvaluationType string

const (
	EvaluationStructured EvaluationType = "structured"
	EvaluationText       EvaluationType = "text"
)

// Evaluation holds either a structured assessment or a free-text one,
// discriminated by Type.
type Evaluation struct {
	Type                EvaluationType `json:"type"`
	Sentiment           string         `json:"sentiment,omitempty"`
	KeyTopics           []string       `json:"key_topics,omitempty"`
	UserSatisfaction    float64        `json:"user_satisfaction,omitempty"`
	ConversationQuality float64        `json:"conversation_quality,omitempty"`
	MainConcerns        []string       `json:"main_concerns,omitempty"`
	ResolutionStatus    string         `json:"resolution_status,omitempty"`
	EvaluationText      string         `json:"evaluation_text,omitempty"`
	Error               string         `json:"error,omitempty"`
	RawResponse         string         `json:"raw_response,omitempty"`
}

type structuredEvaluationJSON struct {
	Type                EvaluationType `json:"type"`
	Sentiment           string         `json:"sentiment"`
	KeyTopics           []string       `json:"key_topics"`
	UserSatisfaction    float64        `json:"user_satisfaction"`
	ConversationQuality float64        `json:"conversation_quality"`
	MainConcerns        []string       `json:"main_concerns"`
	ResolutionStatus    string         `json:"resolution_status"`
	Error               string         `json:"error,omitempty"`
	RawResponse         string         `json:"raw_response,omitempty"`
}

type textEvaluationJSON struct {
	Type           EvaluationType `json:"type"`
	EvaluationText string         `json:"evaluation_text"`
	Error          string         `json:"error,omitempty"`
}

// MarshalJSON writes only the fields that belong to the evaluation's type.
// Structured records always carry every assessment field, even when empty.
func (e Evaluation) MarshalJSON() ([]byte, error) {
	if e.Type == EvaluationText {
		return json.Marshal(textEvaluationJSON{
			Type:           e.Type,
			EvaluationText: e.EvaluationText,
			Error:          e.Error,
		})
	}

	out := structuredEvaluationJSON{
		Type:                EvaluationStructured,
		Sentiment:           e.Sentiment,
		KeyTopics:           e.KeyTopics,
		UserSatisfaction:    e.UserSatisfaction,
		ConversationQuality: e.ConversationQuality,
		MainConcerns:        e.MainConcerns,
		ResolutionStatus:    e.ResolutionStatus,
		Error:               e.Error,
		RawResponse:         e.RawResponse,
	}
	if out.KeyTopics == nil {
		out.KeyTopics = []string{}
	}
	if out.MainConcerns == nil {
		out.MainConcerns = []string{}
	}
	return json.Marshal(out)
}

// ValidationError reports input that can never succeed, so it is not retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateMessages checks that msgs is a non-empty transcript of well-formed
// messages whose roles are in allowed. Empty content on an allowed role is
// reported through emptyContent rather than rejected, so callers can decide
// whether to warn.
func ValidateMessages(msgs []Message, allowed []Role, emptyContent func(index int)) error {
	if len(msgs) == 0 {
		return &ValidationError{Field: "messages", Reason: "must contain at least one message"}
	}
	for i, m := range msgs {
		if m.Role == "" && m.Content == "" {
			return &ValidationError{Field: fmt.Sprintf("messages[%d]", i), Reason: "missing role and content"}
		}
		if !roleAllowed(m.Role, allowed) {
			return &ValidationError{Field: fmt.Sprintf("messages[%d].role", i), Reason: fmt.Sprintf("unsupported role %q", m.Role)}
		}
		if strings.TrimSpace(m.Content) == "" && emptyContent != nil {
			emptyContent(i)
		}
	}
	return nil
}

func roleAllowed(r Role, allowed []Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
