package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

// ErrEmptyPrompt is returned by LLMClient implementations when a request has
// no user or assistant content left after blank entries are dropped.
var ErrEmptyPrompt = errors.New("conversation: prompt has no messages")

// ChatMessage is one plain-text turn of a side-call prompt.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is a plain text completion used for side calls such as lead
// extraction. Tools and streaming stay on CompletionClient.
type LLMRequest struct {
	Model    string
	System   []string
	Messages []ChatMessage
	// MaxTokens and TopP are left to the provider when zero. A negative
	// Temperature does the same.
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is implemented by the OpenAI, Bedrock and Gemini adapters and by
// FallbackLLMClient, which chains two of them.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// normalize trims blank system blocks and messages and moves system-role
// messages into System, so providers only see user and assistant turns.
func (r LLMRequest) normalize() (LLMRequest, error) {
	out := r
	out.System = make([]string, 0, len(r.System))
	out.Messages = make([]ChatMessage, 0, len(r.Messages))
	for _, block := range r.System {
		if block = strings.TrimSpace(block); block != "" {
			out.System = append(out.System, block)
		}
	}
	for _, msg := range r.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			out.System = append(out.System, content)
		case ChatRoleUser, ChatRoleAssistant:
			out.Messages = append(out.Messages, ChatMessage{Role: msg.Role, Content: content})
		default:
			return LLMRequest{}, fmt.Errorf("conversation: unsupported role %q in side call", msg.Role)
		}
	}
	if len(out.Messages) == 0 {
		return LLMRequest{}, ErrEmptyPrompt
	}
	return out, nil
}
