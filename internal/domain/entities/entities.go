// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

// Conversation roles understood by the language-model collaborator.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a conversation turn.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}
