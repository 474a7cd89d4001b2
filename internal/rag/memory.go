// internal/rag/memory.go
package rag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/deepwiki-go/repochat/internal/models"
	"github.com/google/uuid"
)

// Memory holds the dialog turns of one conversation. Turns are only ever
// appended, so a read can never observe a half-written history.
type Memory struct {
	mu    sync.RWMutex
	turns []models.DialogTurn
}

// NewMemory creates an empty conversation memory
func NewMemory() *Memory {
	return &Memory{}
}

// MemoryFromMessages replays completed user/assistant pairs from a message
// list. Pairs are read at even offsets; anything out of order is skipped.
func MemoryFromMessages(messages []models.ChatMessage) *Memory {
	m := NewMemory()
	for i := 0; i+1 < len(messages); i += 2 {
		user, assistant := messages[i], messages[i+1]
		if user.Role == RoleUser && assistant.Role == RoleAssistant {
			m.AddTurn(user.Content, assistant.Content)
		}
	}
	return m
}

// AddTurn appends a turn and reports whether it was stored. A turn with both
// sides empty carries nothing and is rejected.
func (m *Memory) AddTurn(userQuery, assistantResponse string) bool {
	if userQuery == "" && assistantResponse == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.turns = append(m.turns, models.DialogTurn{
		ID:                uuid.New().String(),
		UserQuery:         userQuery,
		AssistantResponse: assistantResponse,
	})
	return true
}

// Export returns a copy of all turns in insertion order.
func (m *Memory) Export() []models.DialogTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := make([]models.DialogTurn, len(m.turns))
	copy(turns, m.turns)
	return turns
}

// Lookup finds a turn by id.
func (m *Memory) Lookup(id string) (models.DialogTurn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.turns {
		if t.ID == id {
			return t, true
		}
	}
	return models.DialogTurn{}, false
}

// Len returns the number of stored turns
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// FormattedHistory renders the turns for the conversation_history block.
func (m *Memory) FormattedHistory() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sb strings.Builder
	for _, turn := range m.turns {
		fmt.Fprintf(&sb, "<turn>\n<user>%s</user>\n<assistant>%s</assistant>\n</turn>\n",
			turn.UserQuery, turn.AssistantResponse)
	}
	return sb.String()
}
