package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	httpmiddleware "github.com/wolfman30/hrconsult-assistant/internal/http/middleware"
	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

type conversationReader interface {
	GetSession(ctx context.Context, sessionID string) (*session.Conversation, error)
	Messages(ctx context.Context, sessionID string, limit int) ([]conversation.Message, error)
}

// AdminConversationsHandler serves chat transcripts to operators.
type AdminConversationsHandler struct {
	conversations conversationReader
	logger        *logging.Logger
}

// NewAdminConversationsHandler creates a new admin conversations handler.
func NewAdminConversationsHandler(conversations conversationReader, logger *logging.Logger) *AdminConversationsHandler {
	if conversations == nil {
		panic("handlers: conversation reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{conversations: conversations, logger: logger}
}

// ConversationDetailResponse is one session with its transcript.
type ConversationDetailResponse struct {
	SessionID     string            `json:"session_id"`
	Status        string            `json:"status"`
	StartedAt     string            `json:"started_at"`
	LastMessageAt *string           `json:"last_message_at,omitempty"`
	Messages      []MessageResponse `json:"messages"`
	Metadata      ConversationMeta  `json:"metadata"`
}

// MessageResponse represents a message in a conversation.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Tokens    int    `json:"tokens"`
	Aborted   bool   `json:"aborted,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ConversationMeta summarises a transcript.
type ConversationMeta struct {
	TotalMessages     int `json:"total_messages"`
	TotalTokens       int `json:"total_tokens"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	AbortedReplies    int `json:"aborted_replies"`
}

// GetConversation handles GET /admin/conversations/{sessionID}?limit=N.
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		jsonError(w, "session id is required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	conv, err := h.conversations.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			jsonError(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("admin: load conversation", "session_id", sessionID, "error", err)
		jsonError(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	msgs, err := h.conversations.Messages(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("admin: load transcript", "session_id", sessionID, "error", err)
		jsonError(w, "failed to load transcript", http.StatusInternalServerError)
		return
	}

	h.logger.Info("admin viewed conversation", "session_id", sessionID, "operator", operator(r))
	writeJSON(w, http.StatusOK, buildConversationDetail(conv, msgs))
}

func buildConversationDetail(conv *session.Conversation, msgs []conversation.Message) ConversationDetailResponse {
	resp := ConversationDetailResponse{
		SessionID: conv.SessionID,
		Status:    conv.Status,
		StartedAt: conv.CreatedAt.UTC().Format(time.RFC3339),
		Messages:  make([]MessageResponse, 0, len(msgs)),
		Metadata: ConversationMeta{
			TotalMessages: conv.TotalMessages,
			TotalTokens:   conv.TotalTokens,
		},
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Tokens:    m.Tokens,
			Aborted:   m.Metadata["aborted"] == "true",
			Failed:    m.Metadata["error"] == "true",
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
		})
		switch m.Role {
		case conversation.ChatRoleUser:
			resp.Metadata.UserMessages++
		case conversation.ChatRoleAssistant:
			resp.Metadata.AssistantMessages++
			if m.Metadata["aborted"] == "true" {
				resp.Metadata.AbortedReplies++
			}
		}
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1].Timestamp.UTC().Format(time.RFC3339)
		resp.LastMessageAt = &last
	}
	return resp
}

// operator names the admin token subject for audit logs.
func operator(r *http.Request) string {
	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
