package bootstrap

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/hrconsult-assistant/internal/config"
	"github.com/wolfman30/hrconsult-assistant/internal/notify"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// BuildEmailSender picks the lead notification transport. Missing credentials
// degrade to LogSender rather than failing startup.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	from := notify.Identity{Address: cfg.EmailFromAddress, Name: cfg.EmailFromName}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, From: from}, logger); sender != nil {
			logger.Info("lead notifications via sendgrid")
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; logging notifications only")
	case "ses":
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("ses selected but aws config failed; logging notifications only", "error", err)
			break
		}
		logger.Info("lead notifications via ses", "region", cfg.AWSRegion)
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), from, logger)
	}
	return notify.NewLogSender(logger)
}
