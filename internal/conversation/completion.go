package conversation

import (
	"context"
	"errors"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// ErrCompletionFailure wraps any network or HTTP failure from the completion API.
var ErrCompletionFailure = errors.New("conversation: completion failed")

// CompletionConfig is the sampling bundle sent with every chat request.
type CompletionConfig struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Stream      bool
}

// CompletionRequest carries the running history for one completion call.
// Messages may already contain assistant tool-call and tool-result entries.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []openai.ChatCompletionMessage
	Tools        []openai.Tool
	Config       CompletionConfig
}

// ToolCall is a named operation the model asked us to run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// CompletionResult is the accumulated output of one completion call.
type CompletionResult struct {
	Text         string
	ToolCalls    []ToolCall
	Tokens       int
	Estimated    bool
	Aborted      bool
	FinishReason string
}

// CompletionClient talks to the hosted completion API.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	// Stream invokes onFragment for each text delta. Cancelling ctx ends the
	// stream cleanly: the partial result is returned with Aborted set and a nil error.
	Stream(ctx context.Context, req CompletionRequest, onFragment func(string)) (CompletionResult, error)
}

// EstimateTokens approximates token usage as ceil(characters/4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
