package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/hrconsult-assistant/internal/leads"
	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// Service emails the sales inbox about captured leads and verified payments.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates a notification service. With no recipients every call is a no-op.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Service{email: email, recipients: to, logger: logger.Component("notify")}
}

// LeadCaptured sends the lead summary to every recipient.
func (s *Service) LeadCaptured(ctx context.Context, lead *leads.Lead) error {
	if lead == nil || s.email == nil || len(s.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("New %s lead: %s (score %d)", sourceLabel(lead.Source), lead.Name, lead.Score)

	var b strings.Builder
	fmt.Fprintf(&b, "A new lead was captured.\n\n")
	writeLine(&b, "Name", lead.Name)
	writeLine(&b, "Email", lead.Email)
	writeLine(&b, "Phone", lead.Phone)
	writeLine(&b, "Company", lead.Company)
	writeLine(&b, "Position", lead.Position)
	writeLine(&b, "Company size", lead.CompanySize)
	writeLine(&b, "Industry", lead.Industry)
	writeLine(&b, "Interested in", lead.ServiceInterest)
	writeLine(&b, "Budget", lead.Budget)
	writeLine(&b, "Timeline", lead.Timeline)
	writeLine(&b, "Notes", lead.Notes)
	fmt.Fprintf(&b, "Score: %d/100\n", lead.Score)
	if !lead.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Captured: %s\n", lead.CreatedAt.Format("January 2, 2006 at 3:04 PM MST"))
	}

	return s.broadcast(ctx, EmailMessage{Subject: subject, Body: b.String(), ReplyTo: lead.Email, Category: "lead"})
}

// PaymentVerified tells sales that a checkout completed.
func (s *Service) PaymentVerified(ctx context.Context, tx *payments.Transaction) error {
	if tx == nil || s.email == nil || len(s.recipients) == 0 {
		return nil
	}
	buyer := tx.Name
	if buyer == "" {
		buyer = tx.Email
	}
	subject := fmt.Sprintf("Payment received: %s for %s", formatAmount(tx.AmountPaise, tx.Currency), tx.ToolID)

	var b strings.Builder
	fmt.Fprintf(&b, "%s completed a payment.\n\n", buyer)
	writeLine(&b, "Email", tx.Email)
	writeLine(&b, "Product", tx.ToolID)
	writeLine(&b, "Amount", formatAmount(tx.AmountPaise, tx.Currency))
	writeLine(&b, "Order", tx.OrderID)
	writeLine(&b, "Payment", tx.PaymentID)

	return s.broadcast(ctx, EmailMessage{Subject: subject, Body: b.String(), ReplyTo: tx.Email, Category: "payment"})
}

func (s *Service) broadcast(ctx context.Context, msg EmailMessage) error {
	var errs []error
	for _, to := range s.recipients {
		msg.To = to
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notification email failed", "to", to, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d of %d emails failed: %w", len(errs), len(s.recipients), errors.Join(errs...))
	}
	return nil
}

func writeLine(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

func sourceLabel(source string) string {
	switch source {
	case leads.SourceChatbot:
		return "chatbot"
	case leads.SourceWebForm:
		return "contact form"
	default:
		return "website"
	}
}

func formatAmount(paise int64, currency string) string {
	if strings.EqualFold(currency, "INR") || currency == "" {
		return fmt.Sprintf("₹%d.%02d", paise/100, paise%100)
	}
	return fmt.Sprintf("%s %d.%02d", strings.ToUpper(currency), paise/100, paise%100)
}

var (
	_ leads.Notifier    = (*Service)(nil)
	_ payments.Notifier = (*Service)(nil)
)
