package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/hrconsult-assistant/internal/catalog"
	"github.com/wolfman30/hrconsult-assistant/internal/observability/metrics"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// Notifier is told about every verified payment.
type Notifier interface {
	PaymentVerified(ctx context.Context, tx *Transaction) error
}

type orderGateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error)
	KeyID() string
	Secret() string
}

// Service creates gateway orders for priced tools and verifies completed checkouts.
type Service struct {
	repo     Repository
	gateway  orderGateway
	prices   catalog.Repository
	currency string
	notifier Notifier
	metrics  *metrics.ChatMetrics
	logger   *logging.Logger
}

type ServiceOption func(*Service)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.ChatMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultCurrency sets the currency used when a price row has none.
func WithDefaultCurrency(currency string) ServiceOption {
	return func(s *Service) {
		if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
			s.currency = c
		}
	}
}

func NewService(repo Repository, gateway orderGateway, prices catalog.Repository, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil || gateway == nil || prices == nil {
		panic("payments: repository, gateway and catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:     repo,
		gateway:  gateway,
		prices:   prices,
		currency: "INR",
		logger:   logger.Component("payments"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder prices the tool from the catalog, opens a gateway order and
// records a created transaction.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	price, err := catalog.StartingPrice(ctx, s.prices, req.ToolID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, errors.Join(ErrInvalidRequest, fmt.Errorf("no price for tool %q", req.ToolID))
		}
		return nil, fmt.Errorf("payments: price lookup: %w", err)
	}
	currency := strings.ToUpper(price.Currency)
	if currency == "" {
		currency = s.currency
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	order, err := s.gateway.CreateOrder(ctx, price.AmountPaise, currency, receipt, map[string]string{
		"tool_id": req.ToolID,
		"email":   req.Email,
	})
	if err != nil {
		s.logger.Error("gateway order failed", "tool_id", req.ToolID, "error", err)
		return nil, err
	}

	tx := &Transaction{
		OrderID:     order.ID,
		ToolID:      req.ToolID,
		Email:       req.Email,
		Name:        req.Name,
		AmountPaise: price.AmountPaise,
		Currency:    currency,
		Status:      StatusCreated,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("payment order created", "order_id", order.ID, "tool_id", req.ToolID, "amount_paise", price.AmountPaise)
	return &OrderResponse{
		OrderID:       order.ID,
		TransactionID: tx.ID,
		AmountPaise:   price.AmountPaise,
		Currency:      currency,
		KeyID:         s.gateway.KeyID(),
		ToolID:        req.ToolID,
		Description:   price.Tier,
	}, nil
}

// Verify checks the checkout signature and marks the transaction paid. A
// mismatch returns ErrSignatureMismatch and leaves the transaction untouched.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !VerifySignature(s.gateway.Secret(), req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn("payment signature mismatch", "order_id", req.OrderID, "payment_id", req.PaymentID)
		s.metrics.ObservePaymentVerification("mismatch")
		return nil, ErrSignatureMismatch
	}

	existing, err := s.repo.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			s.metrics.ObservePaymentVerification("unknown_order")
		}
		return nil, err
	}
	if existing.Status == StatusPaid {
		s.metrics.ObservePaymentVerification("duplicate")
		return existing, nil
	}

	payload, _ := json.Marshal(req)
	tx, err := s.repo.MarkPaid(ctx, req.OrderID, req.PaymentID, PaymentLog{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Event:     "payment.verified",
		Payload:   string(payload),
	})
	if err != nil {
		s.metrics.ObservePaymentVerification("error")
		return nil, err
	}

	s.metrics.ObservePaymentVerification("verified")
	s.logger.Info("payment verified", "order_id", tx.OrderID, "payment_id", tx.PaymentID, "tool_id", tx.ToolID)
	if s.notifier != nil {
		if err := s.notifier.PaymentVerified(ctx, tx); err != nil {
			s.logger.Warn("payment notification failed", "order_id", tx.OrderID, "error", err)
		}
	}
	return tx, nil
}
