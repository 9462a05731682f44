package conversation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidRole is returned when a message role is not user, assistant or tool.
	ErrInvalidRole = errors.New("conversation: invalid message role")

	// ErrMissingConversationID is returned when a log operation has no conversation id.
	ErrMissingConversationID = errors.New("conversation: conversation id required")
)

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	Tokens         int               `json:"tokens"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Log is the ordered, per-conversation message history.
type Log interface {
	Append(ctx context.Context, conversationID, role, content string, tokens int, metadata map[string]string) (Message, error)
	// List returns the most recent limit messages, oldest first. limit <= 0 returns all.
	List(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

func validRole(role string) bool {
	switch role {
	case ChatRoleUser, ChatRoleAssistant, ChatRoleTool:
		return true
	default:
		return false
	}
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// toChatMessages converts log entries into completion history, dropping tool entries.
func toChatMessages(messages []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != ChatRoleUser && m.Role != ChatRoleAssistant {
			continue
		}
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
