package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// FallbackLLMClient retries a failed side call on a second provider.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient panics on a nil primary. With a nil fallback, primary
// errors are returned unchanged.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	// A bad prompt fails the same way everywhere, and a dead context cannot be retried.
	if c.fallback == nil || errors.Is(err, ErrEmptyPrompt) || ctx.Err() != nil {
		return LLMResponse{}, err
	}
	c.logger.Warn("primary llm failed; trying fallback", "model", req.Model, "error", err)

	// Model ids are provider specific.
	req.Model = ""
	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback llm failed", "error", fallbackErr)
		return LLMResponse{}, errors.Join(err, fallbackErr)
	}
	return resp, nil
}
