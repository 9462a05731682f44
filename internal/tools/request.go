package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tool names as declared to the model.
const (
	NameGetServices        = "get_services"
	NameGetPricing         = "get_pricing"
	NameGetContent         = "get_content"
	NameGetBookingSlots    = "get_booking_slots"
	NameCreateLead         = "create_lead"
	NameScheduleCall       = "schedule_call"
	NameCreatePaymentOrder = "create_payment_order"
	NameSendWhatsAppOptIn  = "send_whatsapp_optin"
)

var (
	// ErrUnknownTool is returned for a name outside the declared set.
	ErrUnknownTool = errors.New("tools: unknown tool")
	// ErrInvalidArguments is returned when arguments do not decode or miss a required field.
	ErrInvalidArguments = errors.New("tools: invalid arguments")
)

// Request is one parsed tool call. The set of implementations is closed by
// the unexported normalize method.
type Request interface {
	ToolName() string
	normalize() (Request, error)
}

type GetServices struct {
	Category string `json:"category,omitempty"`
}

type GetPricing struct {
	ToolID string `json:"tool_id"`
}

type GetContent struct {
	Key string `json:"key"`
}

// GetBookingSlots lists open slots on Date (YYYY-MM-DD), or the coming week when empty.
type GetBookingSlots struct {
	Date string `json:"date,omitempty"`
}

type CreateLead struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Company         string `json:"company,omitempty"`
	ServiceInterest string `json:"service_interest,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type ScheduleCall struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	PreferredTime string `json:"preferred_time"`
	Topic         string `json:"topic,omitempty"`
}

type CreatePaymentOrder struct {
	ToolID string `json:"tool_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

type SendWhatsAppOptIn struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

func (GetServices) ToolName() string        { return NameGetServices }
func (GetPricing) ToolName() string         { return NameGetPricing }
func (GetContent) ToolName() string         { return NameGetContent }
func (GetBookingSlots) ToolName() string    { return NameGetBookingSlots }
func (CreateLead) ToolName() string         { return NameCreateLead }
func (ScheduleCall) ToolName() string       { return NameScheduleCall }
func (CreatePaymentOrder) ToolName() string { return NameCreatePaymentOrder }
func (SendWhatsAppOptIn) ToolName() string  { return NameSendWhatsAppOptIn }

func (r GetServices) normalize() (Request, error) {
	r.Category = strings.TrimSpace(r.Category)
	return r, nil
}

func (r GetPricing) normalize() (Request, error) {
	r.ToolID = strings.TrimSpace(r.ToolID)
	if r.ToolID == "" {
		return nil, missing("tool_id")
	}
	return r, nil
}

func (r GetContent) normalize() (Request, error) {
	r.Key = strings.TrimSpace(r.Key)
	if r.Key == "" {
		return nil, missing("key")
	}
	return r, nil
}

func (r GetBookingSlots) normalize() (Request, error) {
	r.Date = strings.TrimSpace(r.Date)
	return r, nil
}

func (r CreateLead) normalize() (Request, error) {
	trimAll(&r.Name, &r.Email, &r.Phone, &r.Company, &r.ServiceInterest, &r.Notes)
	if r.Name == "" || r.Email == "" {
		return nil, missing("name and email")
	}
	return r, nil
}

func (r ScheduleCall) normalize() (Request, error) {
	trimAll(&r.Name, &r.Email, &r.Phone, &r.PreferredTime, &r.Topic)
	if r.Name == "" || r.Email == "" || r.PreferredTime == "" {
		return nil, missing("name, email and preferred_time")
	}
	return r, nil
}

func (r CreatePaymentOrder) normalize() (Request, error) {
	trimAll(&r.ToolID, &r.Email, &r.Name)
	if r.ToolID == "" || r.Email == "" {
		return nil, missing("tool_id and email")
	}
	return r, nil
}

func (r SendWhatsAppOptIn) normalize() (Request, error) {
	trimAll(&r.Phone, &r.Name)
	if r.Phone == "" {
		return nil, missing("phone")
	}
	return r, nil
}

// Parse decodes the model's JSON arguments for the named tool and checks
// required fields.
func Parse(name, args string) (Request, error) {
	switch name {
	case NameGetServices:
		return decode[GetServices](args)
	case NameGetPricing:
		return decode[GetPricing](args)
	case NameGetContent:
		return decode[GetContent](args)
	case NameGetBookingSlots:
		return decode[GetBookingSlots](args)
	case NameCreateLead:
		return decode[CreateLead](args)
	case NameScheduleCall:
		return decode[ScheduleCall](args)
	case NameCreatePaymentOrder:
		return decode[CreatePaymentOrder](args)
	case NameSendWhatsAppOptIn:
		return decode[SendWhatsAppOptIn](args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
}

func decode[T Request](args string) (Request, error) {
	var v T
	raw := strings.TrimSpace(args)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return v.normalize()
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

func missing(fields string) error {
	return fmt.Errorf("%w: %s required", ErrInvalidArguments, fields)
}
