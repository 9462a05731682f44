package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var completionTracer = otel.Tracer("hrconsult.internal.conversation.completion")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, request openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// OpenAICompletionClient implements CompletionClient on the OpenAI chat API.
type OpenAICompletionClient struct {
	client chatClient
	model  string
}

// NewOpenAICompletionClient builds a client. baseURL may be empty for the public API.
func NewOpenAICompletionClient(apiKey, baseURL, model string) *OpenAICompletionClient {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return newOpenAICompletionClient(openai.NewClientWithConfig(cfg), model)
}

func newOpenAICompletionClient(client chatClient, model string) *OpenAICompletionClient {
	if client == nil {
		panic("conversation: chat client cannot be nil")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAICompletionClient{client: client, model: model}
}

func (c *OpenAICompletionClient) buildRequest(req CompletionRequest, stream bool) openai.ChatCompletionRequest {
	model := req.Config.Model
	if model == "" {
		model = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, req.Messages...)

	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.Config.MaxTokens,
		Temperature: req.Config.Temperature,
		Stream:      stream,
	}
	if len(req.Tools) > 0 {
		out.Tools = req.Tools
		out.ToolChoice = "auto"
	}
	if stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return out
}

// Complete issues one non-streaming request and returns the authoritative usage.
func (c *OpenAICompletionClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	ctx, span := completionTracer.Start(ctx, "conversation.openai.complete")
	defer span.End()

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
	if err != nil {
		span.RecordError(err)
		return CompletionResult{}, fmt.Errorf("%w: %w", ErrCompletionFailure, err)
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("%w: openai returned no choices", ErrCompletionFailure)
		span.RecordError(err)
		return CompletionResult{}, err
	}

	choice := resp.Choices[0]
	result := CompletionResult{
		Text:         strings.TrimSpace(choice.Message.Content),
		FinishReason: string(choice.FinishReason),
		Tokens:       resp.Usage.TotalTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if result.Tokens == 0 {
		result.Tokens = EstimateTokens(result.Text)
		result.Estimated = true
	}
	span.SetAttributes(
		attribute.Int("hrconsult.openai.tokens", result.Tokens),
		attribute.Int("hrconsult.openai.tool_calls", len(result.ToolCalls)),
	)
	return result, nil
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// Stream issues a streaming request, forwarding each text fragment to onFragment.
func (c *OpenAICompletionClient) Stream(ctx context.Context, req CompletionRequest, onFragment func(string)) (CompletionResult, error) {
	ctx, span := completionTracer.Start(ctx, "conversation.openai.stream")
	defer span.End()

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		if ctx.Err() != nil {
			return CompletionResult{Aborted: true}, nil
		}
		span.RecordError(err)
		return CompletionResult{}, fmt.Errorf("%w: %w", ErrCompletionFailure, err)
	}
	defer stream.Close()

	var (
		text     strings.Builder
		result   CompletionResult
		calls    = map[int]*toolCallAccumulator{}
		usageSet bool
	)

	for {
		if ctx.Err() != nil {
			result.Aborted = true
			break
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				result.Aborted = true
				break
			}
			span.RecordError(err)
			return CompletionResult{}, fmt.Errorf("%w: %w", ErrCompletionFailure, err)
		}
		if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
			result.Tokens = chunk.Usage.TotalTokens
			usageSet = true
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				result.FinishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if onFragment != nil && ctx.Err() == nil {
					onFragment(choice.Delta.Content)
				}
			}
			for i, tc := range choice.Delta.ToolCalls {
				idx := i
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := calls[idx]
				if !ok {
					acc = &toolCallAccumulator{}
					calls[idx] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}
		}
	}

	result.Text = strings.TrimSpace(text.String())
	if !result.Aborted {
		result.ToolCalls = collectToolCalls(calls)
	}
	if !usageSet {
		result.Tokens = EstimateTokens(text.String())
		result.Estimated = true
	}
	span.SetAttributes(
		attribute.Bool("hrconsult.openai.aborted", result.Aborted),
		attribute.Int("hrconsult.openai.tokens", result.Tokens),
	)
	return result, nil
}

func collectToolCalls(calls map[int]*toolCallAccumulator) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	out := make([]ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		acc := calls[idx]
		if acc.name == "" {
			continue
		}
		out = append(out, ToolCall{ID: acc.id, Name: acc.name, Arguments: acc.args.String()})
	}
	return out
}

// OpenAILLMClient adapts the chat API to the plain LLMClient interface.
type OpenAILLMClient struct {
	client chatClient
	model  string
}

func NewOpenAILLMClient(apiKey, baseURL, model string) *OpenAILLMClient {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAILLMClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAILLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	req, err := req.normalize()
	if err != nil {
		return LLMResponse{}, err
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: block})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: int(req.MaxTokens),
		TopP:      req.TopP,
	}
	// Negative temperature means "provider default".
	if req.Temperature >= 0 {
		chatReq.Temperature = req.Temperature
	}
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("%w: %w", ErrCompletionFailure, err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, fmt.Errorf("%w: openai returned no choices", ErrCompletionFailure)
	}
	return LLMResponse{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}
