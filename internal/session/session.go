// Package session keeps per-session conversation metadata for the chat assistant.
package session

import (
	"context"
	"errors"
	"time"
)

// Conversation statuses.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

var (
	// ErrNotFound is returned when no conversation exists for a session.
	ErrNotFound = errors.New("session: conversation not found")

	// ErrMissingSessionID is returned when the caller passes an empty session id.
	ErrMissingSessionID = errors.New("session: session id required")
)

// Conversation is the server-side record of one session's chat exchange.
type Conversation struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Status        string    `json:"status"`
	TotalMessages int       `json:"total_messages"`
	TotalTokens   int       `json:"total_tokens"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Patch describes a partial update. Nil/zero fields are left untouched.
type Patch struct {
	Status        *string
	MessagesDelta int
	TokensDelta   int
}

// Store is the session-scoped conversation store injected into the chat service.
type Store interface {
	Create(ctx context.Context, sessionID string) (*Conversation, error)
	Get(ctx context.Context, sessionID string) (*Conversation, error)
	Update(ctx context.Context, sessionID string, patch Patch) (*Conversation, error)
	Delete(ctx context.Context, sessionID string) error
}

// StatusPtr is a small helper for building patches.
func StatusPtr(status string) *string {
	return &status
}

// apply merges patch into conv and bumps UpdatedAt.
func (p Patch) apply(conv *Conversation, now time.Time) {
	if p.Status != nil && *p.Status != "" {
		conv.Status = *p.Status
	}
	conv.TotalMessages += p.MessagesDelta
	if conv.TotalMessages < 0 {
		conv.TotalMessages = 0
	}
	conv.TotalTokens += p.TokensDelta
	if conv.TotalTokens < 0 {
		conv.TotalTokens = 0
	}
	if now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	} else {
		conv.UpdatedAt = conv.UpdatedAt.Add(time.Nanosecond)
	}
}
