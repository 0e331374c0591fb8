package core

import "strings"

var lowerSentinel = strings.ToLower(CompletionSentinel)

// IsComplete reports whether an assistant reply carries the completion marker.
// Only successful assistant replies are checked; user input never is.
// TODO: replace with a structured end-of-interview tool call once Provider
// exposes function calling for both OpenAI and Gemini.
func IsComplete(reply string) bool {
	return strings.Contains(strings.ToLower(reply), lowerSentinel)
}
