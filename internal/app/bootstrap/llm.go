package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/hrconsult-assistant/internal/config"
	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// BuildCompletionClient returns the streaming chat client used for turns.
func BuildCompletionClient(cfg *appconfig.Config, logger *logging.Logger) conversation.CompletionClient {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		logger.Warn("OPENAI_API_KEY not set; completion calls will fail")
	}
	return conversation.NewOpenAICompletionClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
}

// BuildExtractionClient returns the client the lead extractor calls. OpenAI is
// primary; EXTRACTION_FALLBACK selects bedrock or gemini as a second provider.
func BuildExtractionClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)

	var fallback conversation.LLMClient
	switch cfg.ExtractionFallback {
	case "":
		return primary, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			logger.Warn("bedrock fallback requested without BEDROCK_MODEL_ID; disabling fallback")
			return primary, nil
		}
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		fallback = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini fallback: %w", err)
		}
		fallback = client
	default:
		return nil, fmt.Errorf("bootstrap: unknown extraction fallback %q", cfg.ExtractionFallback)
	}

	logger.Info("lead extraction fallback enabled", "provider", cfg.ExtractionFallback)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), nil
}

// loadAWSConfig prefers static keys from config and otherwise uses the
// default credential chain.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	return awsCfg, nil
}
