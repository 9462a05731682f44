package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

const defaultFromName = "HR Consult Assistant"

// EmailSender delivers one message. SendGrid, SES and LogSender all satisfy it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single outbound notification.
type EmailMessage struct {
	To       string
	Subject  string
	Body     string
	HTML     string
	ReplyTo  string // lead address, so sales can answer straight from the inbox
	Category string // "lead" or "payment"
}

// Identity is the From header shared by every transport.
type Identity struct {
	Address string
	Name    string
}

func (id Identity) withDefaults() Identity {
	id.Address = strings.TrimSpace(id.Address)
	if strings.TrimSpace(id.Name) == "" {
		id.Name = defaultFromName
	}
	return id
}

func (id Identity) String() string {
	return fmt.Sprintf("%s <%s>", id.Name, id.Address)
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender delivers through the SendGrid v3 mail API.
type SendGridSender struct {
	api    sendgridAPI
	from   Identity
	logger *logging.Logger
}

type SendGridConfig struct {
	APIKey string
	From   Identity
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg.From, logger)
}

func newSendGridSender(api sendgridAPI, from Identity, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{api: api, from: from.withDefaults(), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.api == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	html := msg.HTML
	if html == "" {
		html = plainToHTML(msg.Body)
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.Name, s.from.Address),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.Body,
		html,
	)
	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}

	resp, err := s.api.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	}
	s.logger.Debug("sendgrid accepted message", "to", msg.To, "category", msg.Category, "status", resp.StatusCode)
	return nil
}

// plainToHTML keeps line breaks when SendGrid renders the HTML part.
func plainToHTML(body string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br>\n")
	return r.Replace(body)
}

// LogSender writes notifications to the log instead of delivering them.
// It is the fallback when no provider is configured.
type LogSender struct {
	logger *logging.Logger

	mu   sync.Mutex
	sent []EmailMessage
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	s.logger.Info("email delivery disabled; notification logged", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}

// Sent returns a copy of every message passed to Send.
func (s *LogSender) Sent() []EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EmailMessage(nil), s.sent...)
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*LogSender)(nil)
)
