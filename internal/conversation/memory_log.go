package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog keeps message history in process memory.
type MemoryLog struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

// NewMemoryLog creates an empty in-memory message log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{messages: make(map[string][]Message)}
}

func (l *MemoryLog) Append(_ context.Context, conversationID, role, content string, tokens int, metadata map[string]string) (Message, error) {
	if conversationID == "" {
		return Message{}, ErrMissingConversationID
	}
	if !validRole(role) {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Metadata:       copyMetadata(metadata),
		Timestamp:      time.Now().UTC(),
	}

	l.mu.Lock()
	l.messages[conversationID] = append(l.messages[conversationID], msg)
	l.mu.Unlock()
	return msg, nil
}

func (l *MemoryLog) List(_ context.Context, conversationID string, limit int) ([]Message, error) {
	if conversationID == "" {
		return nil, ErrMissingConversationID
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.messages[conversationID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := make([]Message, len(all)-start)
	copy(out, all[start:])
	return out, nil
}

// Clear drops a conversation's history.
func (l *MemoryLog) Clear(conversationID string) {
	l.mu.Lock()
	delete(l.messages, conversationID)
	l.mu.Unlock()
}
