package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/hrconsult-assistant/internal/catalog"
	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/leads"
	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// LeadCreator stores leads captured by the create_lead tool.
type LeadCreator interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
}

// OrderCreator opens payment orders.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req payments.OrderRequest) (*payments.OrderResponse, error)
}

// SessionMarker owns the one-lead-per-session guard shared with background
// extraction. Claim returns false when the session already produced a lead.
type SessionMarker interface {
	Claim(sessionID string) bool
}

// Dispatcher executes tool calls against the catalog, leads and payments.
type Dispatcher struct {
	catalog  catalog.Repository
	leads    LeadCreator
	orders   OrderCreator
	notifier leads.Notifier
	marker   SessionMarker
	location *time.Location
	logger   *logging.Logger
}

type Option func(*Dispatcher)

// WithOrders enables create_payment_order.
func WithOrders(orders OrderCreator) Option {
	return func(d *Dispatcher) { d.orders = orders }
}

func WithLeadNotifier(n leads.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithSessionMarker(m SessionMarker) Option {
	return func(d *Dispatcher) { d.marker = m }
}

// WithLocation sets the zone booking dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

func NewDispatcher(cat catalog.Repository, leadRepo LeadCreator, logger *logging.Logger, opts ...Option) *Dispatcher {
	if cat == nil || leadRepo == nil {
		panic("tools: catalog and lead repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		catalog:  cat,
		leads:    leadRepo,
		location: time.UTC,
		logger:   logger.Component("tools"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Definitions() []openai.Tool {
	defs := Definitions()
	if d.orders != nil {
		return defs
	}
	out := defs[:0:0]
	for _, def := range defs {
		if def.Function.Name != NameCreatePaymentOrder {
			out = append(out, def)
		}
	}
	return out
}

// Execute runs one call and returns the JSON payload for the model. Failures
// are reported as {"error": "..."} with ok false; they never abort the turn.
func (d *Dispatcher) Execute(ctx context.Context, sessionID string, call conversation.ToolCall) (string, bool) {
	req, err := Parse(call.Name, call.Arguments)
	if err != nil {
		d.logger.Warn("tool call rejected", "tool", call.Name, "session_id", sessionID, "error", err)
		return errorPayload(err), false
	}

	result, err := d.Dispatch(ctx, sessionID, req)
	if err != nil {
		d.logger.Warn("tool call failed", "tool", call.Name, "session_id", sessionID, "error", err)
		return errorPayload(err), false
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Errorf("tools: encode result: %w", err)), false
	}
	d.logger.Debug("tool call completed", "tool", call.Name, "session_id", sessionID)
	return string(payload), true
}

// Dispatch runs a parsed request.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, req Request) (any, error) {
	switch r := req.(type) {
	case GetServices:
		services, err := d.catalog.ListServices(ctx, r.Category)
		if err != nil {
			return nil, err
		}
		return map[string]any{"services": services}, nil

	case GetPricing:
		prices, err := d.catalog.ListPricing(ctx, r.ToolID)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			return nil, fmt.Errorf("no pricing found for %q", r.ToolID)
		}
		quotes := make([]priceQuote, 0, len(prices))
		for _, p := range prices {
			quotes = append(quotes, newPriceQuote(p))
		}
		return map[string]any{"tool_id": r.ToolID, "prices": quotes}, nil

	case GetContent:
		content, err := d.catalog.GetContent(ctx, r.Key)
		if err != nil {
			return nil, err
		}
		return content, nil

	case GetBookingSlots:
		var day time.Time
		if r.Date != "" {
			parsed, err := time.ParseInLocation("2006-01-02", r.Date, d.location)
			if err != nil {
				return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArguments)
			}
			day = parsed
		}
		slots, err := d.catalog.ListOpenSlots(ctx, day)
		if err != nil {
			return nil, err
		}
		out := make([]slotView, 0, len(slots))
		for _, s := range slots {
			out = append(out, slotView{
				ID:       s.ID,
				StartsAt: s.StartsAt.Format(time.RFC3339),
				Label:    s.StartsAt.In(d.location).Format("Mon 2 Jan, 3:04 PM"),
			})
		}
		return map[string]any{"slots": out}, nil

	case CreateLead:
		req := &leads.CreateLeadRequest{
			Name:            r.Name,
			Email:           r.Email,
			Phone:           r.Phone,
			Company:         r.Company,
			ServiceInterest: r.ServiceInterest,
			Notes:           r.Notes,
			Source:          leads.SourceChatbot,
			Consent:         true,
			SessionID:       sessionID,
		}
		// Invalid details must not consume the session's single lead.
		if err := req.Validate(); err != nil {
			return nil, err
		}
		if d.marker != nil && !d.marker.Claim(sessionID) {
			return map[string]any{"status": "already_saved"}, nil
		}
		lead, err := d.leads.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		if d.notifier != nil {
			if err := d.notifier.LeadCaptured(ctx, lead); err != nil {
				d.logger.Warn("lead notification failed", "lead_id", lead.ID, "error", err)
			}
		}
		return map[string]any{"lead_id": lead.ID, "status": "saved"}, nil

	case ScheduleCall:
		call, err := d.catalog.ScheduleCall(ctx, catalog.ScheduleCallRequest{
			Name:          r.Name,
			Email:         r.Email,
			Phone:         r.Phone,
			PreferredTime: r.PreferredTime,
			Topic:         r.Topic,
			SessionID:     sessionID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"call_id": call.ID, "status": call.Status, "preferred_time": call.PreferredTime}, nil

	case CreatePaymentOrder:
		if d.orders == nil {
			return nil, errors.New("online payments are not available")
		}
		order, err := d.orders.CreateOrder(ctx, payments.OrderRequest{ToolID: r.ToolID, Email: r.Email, Name: r.Name})
		if err != nil {
			return nil, err
		}
		return order, nil

	case SendWhatsAppOptIn:
		optIn, err := d.catalog.RecordWhatsAppOptIn(ctx, catalog.WhatsAppOptInRequest{Phone: r.Phone, Name: r.Name, SessionID: sessionID})
		if err != nil {
			return nil, err
		}
		return map[string]any{"opt_in_id": optIn.ID, "status": "subscribed"}, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownTool, req)
	}
}

type priceQuote struct {
	Tier        string `json:"tier"`
	AmountPaise int64  `json:"amount_paise"`
	Display     string `json:"display"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

func newPriceQuote(p catalog.Price) priceQuote {
	display := fmt.Sprintf("%s %d", p.Currency, p.AmountPaise/100)
	if p.Currency == "" || p.Currency == "INR" {
		display = fmt.Sprintf("₹%d", p.AmountPaise/100)
	}
	if rem := p.AmountPaise % 100; rem != 0 {
		display += fmt.Sprintf(".%02d", rem)
	}
	return priceQuote{Tier: p.Tier, AmountPaise: p.AmountPaise, Display: display, Currency: p.Currency, Description: p.Description}
}

type slotView struct {
	ID       string `json:"id"`
	StartsAt string `json:"starts_at"`
	Label    string `json:"label"`
}

func errorPayload(err error) string {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(payload)
}

var _ conversation.ToolExecutor = (*Dispatcher)(nil)
