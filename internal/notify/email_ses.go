package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers through Amazon SES v2.
type SESSender struct {
	api    sesAPI
	from   Identity
	logger *logging.Logger
}

// NewSESSender returns nil when client is nil so callers can fall back to LogSender.
func NewSESSender(client *sesv2.Client, from Identity, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	return newSESSender(client, from, logger)
}

func newSESSender(api sesAPI, from Identity, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{api: api, from: from.withDefaults(), logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.api == nil {
		return fmt.Errorf("notify: ses client not configured")
	}

	body := &types.Body{}
	if msg.Body != "" {
		body.Text = utf8Content(msg.Body)
	}
	if msg.HTML != "" {
		body.Html = utf8Content(msg.HTML)
	}
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{Subject: utf8Content(msg.Subject), Body: body},
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if msg.Category != "" {
		input.EmailTags = []types.MessageTag{{Name: aws.String("category"), Value: aws.String(msg.Category)}}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: ses send: %w", err)
	}
	s.logger.Debug("ses accepted message", "to", msg.To, "category", msg.Category, "message_id", aws.ToString(out.MessageId))
	return nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

var _ EmailSender = (*SESSender)(nil)
