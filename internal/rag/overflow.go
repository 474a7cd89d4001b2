package rag

import "strings"

// overflowMarkers are provider error substrings meaning the prompt exceeded
// the model's context window.
var overflowMarkers = []string{
	"maximum context length",
	"token limit",
	"too many tokens",
	"context length exceeded",
	"context_length_exceeded",
}

// IsContextOverflow reports whether a provider error says the prompt was too
// large for the model.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range overflowMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
