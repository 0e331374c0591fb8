package core

import (
	"github.com/rs/zerolog"

	"newco.ai/founder-scout/internal/store"
)

// PromptAssembler prepends the interview script to a conversation history.
type PromptAssembler struct {
	script string
	log    zerolog.Logger
}

// NewPromptAssembler picks the full interview script, or the two-question
// script when abbreviated is set.
func NewPromptAssembler(abbreviated bool, log zerolog.Logger) *PromptAssembler {
	script := interviewScript
	if abbreviated {
		script = abbreviatedScript
	}
	return &PromptAssembler{script: script, log: log}
}

// SystemPrompt returns the script used as the system message.
func (a *PromptAssembler) SystemPrompt() string {
	return a.script
}

// Assemble returns history with exactly one system message in front. history
// must be a non-empty sequence of user and assistant messages; it is not
// modified.
func (a *PromptAssembler) Assemble(history []store.Message) ([]store.Message, error) {
	allowed := []store.Role{store.RoleUser, store.RoleAssistant}
	err := store.ValidateMessages(history, allowed, func(i int) {
		a.log.Warn().Int("index", i).Str("role", string(history[i].Role)).Msg("Message has empty content")
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.Message, 0, len(history)+1)
	out = append(out, store.Message{Role: store.RoleSystem, Content: a.script})
	out = append(out, history...)
	return out, nil
}
