package rag

import (
	"strings"

	"github.com/deepwiki-go/repochat/internal/models"
)

// DeepResearchMarker switches a conversation into multi-turn research mode
// when it appears in any message.
const DeepResearchMarker = "[DEEP RESEARCH]"

// FinalResearchIteration is the iteration from which the final conclusion
// prompt is used.
const FinalResearchIteration = 5

// Research is the deep research state derived from a conversation
type Research struct {
	Enabled   bool
	Iteration int
}

// IsFirst reports whether this is the planning iteration
func (r Research) IsFirst() bool { return r.Enabled && r.Iteration == 1 }

// IsFinal reports whether this iteration should conclude the research
func (r Research) IsFinal() bool { return r.Enabled && r.Iteration >= FinalResearchIteration }

// AnalyzeResearch detects deep research mode and returns the messages to
// answer with. The marker is removed from the last message. When the last
// message only asks to continue the research, it is replaced by the
// original topic so retrieval stays on it. The input is never modified.
func AnalyzeResearch(messages []models.ChatMessage) (Research, []models.ChatMessage) {
	var research Research
	for _, msg := range messages {
		if strings.Contains(msg.Content, DeepResearchMarker) {
			research.Enabled = true
			break
		}
	}
	if !research.Enabled || len(messages) == 0 {
		return research, messages
	}

	out := make([]models.ChatMessage, len(messages))
	copy(out, messages)

	last := &out[len(out)-1]
	last.Content = stripMarker(last.Content)

	assistantTurns := 0
	for _, msg := range out {
		if msg.Role == RoleAssistant {
			assistantTurns++
		}
	}
	research.Iteration = assistantTurns + 1

	if isContinueRequest(last.Content) {
		if topic, ok := originalTopic(out); ok {
			last.Content = topic
		}
	}
	return research, out
}

func stripMarker(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, DeepResearchMarker, ""))
}

func isContinueRequest(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "continue") && strings.Contains(lower, "research")
}

// originalTopic is the first user message that is not itself a request to
// continue.
func originalTopic(messages []models.ChatMessage) (string, bool) {
	for _, msg := range messages {
		if msg.Role == RoleUser && !strings.Contains(strings.ToLower(msg.Content), "continue") {
			return stripMarker(msg.Content), true
		}
	}
	return "", false
}
