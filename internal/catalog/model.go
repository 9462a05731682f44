// Package catalog serves the site data the assistant reads and writes through
// tools: services, pricing, page copy, booking slots, call requests and
// WhatsApp opt-ins.
package catalog

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a content key or tool does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalidRequest is returned when a write request fails validation.
	ErrInvalidRequest = errors.New("catalog: invalid request")
	// ErrSlotUnavailable is returned when the requested slot is already booked.
	ErrSlotUnavailable = errors.New("catalog: slot unavailable")
)

// Service is one offering from the tool catalog.
type Service struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Price is one price row for a service.
type Price struct {
	ID          string `json:"id"`
	ToolID      string `json:"tool_id"`
	Tier        string `json:"tier"`
	AmountPaise int64  `json:"amount_paise"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// Content is FAQ or page copy keyed by slug.
type Content struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slot is a consultation window.
type Slot struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// ScheduleCallRequest asks for a consultation call. PreferredTime may be an
// RFC 3339 slot start or free text.
type ScheduleCallRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	PreferredTime string `json:"preferred_time"`
	Topic         string `json:"topic,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

// Validate checks required fields.
func (r ScheduleCallRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("name is required"))
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return errors.Join(ErrInvalidRequest, errors.New("a valid email is required"))
	}
	if strings.TrimSpace(r.PreferredTime) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("preferred_time is required"))
	}
	return nil
}

// ScheduledCall is a stored call request.
type ScheduledCall struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	PreferredTime string    `json:"preferred_time"`
	Topic         string    `json:"topic,omitempty"`
	SlotID        string    `json:"slot_id,omitempty"`
	Status        string    `json:"status"`
	SessionID     string    `json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WhatsAppOptInRequest records consent to be contacted on WhatsApp.
type WhatsAppOptInRequest struct {
	Phone     string `json:"phone"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate checks the phone number has a plausible number of digits.
func (r WhatsAppOptInRequest) Validate() error {
	digits := 0
	for _, c := range r.Phone {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	if digits < 10 || digits > 15 {
		return errors.Join(ErrInvalidRequest, errors.New("a valid phone number is required"))
	}
	return nil
}

// WhatsAppOptIn is a stored opt-in.
type WhatsAppOptIn struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CallStatusRequested = "requested"
	CallStatusConfirmed = "confirmed"
)

// Repository is the data layer behind the assistant's tools.
type Repository interface {
	ListServices(ctx context.Context, category string) ([]Service, error)
	ListPricing(ctx context.Context, toolID string) ([]Price, error)
	GetContent(ctx context.Context, key string) (*Content, error)
	// ListOpenSlots returns unbooked slots on day, or for the next week when day is zero.
	ListOpenSlots(ctx context.Context, day time.Time) ([]Slot, error)
	ScheduleCall(ctx context.Context, req ScheduleCallRequest) (*ScheduledCall, error)
	RecordWhatsAppOptIn(ctx context.Context, req WhatsAppOptInRequest) (*WhatsAppOptIn, error)
}

// StartingPrice returns the cheapest price row for a tool.
func StartingPrice(ctx context.Context, repo Repository, toolID string) (*Price, error) {
	prices, err := repo.ListPricing(ctx, toolID)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ErrNotFound
	}
	best := prices[0]
	for _, p := range prices[1:] {
		if p.AmountPaise < best.AmountPaise {
			best = p
		}
	}
	return &best, nil
}

// slotWindow resolves the search window for ListOpenSlots.
func slotWindow(day, now time.Time) (time.Time, time.Time) {
	if day.IsZero() {
		return now, now.Add(7 * 24 * time.Hour)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if start.Before(now) {
		if end := start.Add(24 * time.Hour); end.After(now) {
			return now, end
		}
	}
	return start, start.Add(24 * time.Hour)
}

// preferredSlotStart parses an RFC 3339 preferred time; free text yields false.
func preferredSlotStart(preferred string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(preferred))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
