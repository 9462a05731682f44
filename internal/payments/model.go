package payments

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Transaction statuses.
const (
	StatusCreated = "created"
	StatusPaid    = "paid"
)

var (
	// ErrSignatureMismatch is returned when the gateway signature does not verify.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
	// ErrTransactionNotFound is returned when no transaction matches the order.
	ErrTransactionNotFound = errors.New("payments: transaction not found")
	// ErrInvalidRequest is returned when an order or verify request fails validation.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrGatewayFailure wraps any failure talking to the payment gateway.
	ErrGatewayFailure = errors.New("payments: gateway failure")
)

// Transaction is one checkout attempt for a priced tool.
type Transaction struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	PaymentID   string    `json:"payment_id,omitempty"`
	ToolID      string    `json:"tool_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	AmountPaise int64     `json:"amount_paise"`
	Currency    string    `json:"currency"`
	Status      string    `json:"payment_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PaymentLog is an audit row written for every verified payment.
type PaymentLog struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	Event         string    `json:"event"`
	Payload       string    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderRequest starts a checkout for a tool.
type OrderRequest struct {
	ToolID string `json:"tool_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

func (r *OrderRequest) Validate() error {
	r.ToolID = strings.TrimSpace(r.ToolID)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	if r.ToolID == "" {
		return errors.Join(ErrInvalidRequest, errors.New("tool_id is required"))
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.Join(ErrInvalidRequest, errors.New("a valid email is required"))
	}
	return nil
}

// OrderResponse is what the browser checkout widget needs.
type OrderResponse struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	AmountPaise   int64  `json:"amount"`
	Currency      string `json:"currency"`
	KeyID         string `json:"key_id"`
	ToolID        string `json:"tool_id"`
	Description   string `json:"description,omitempty"`
}

// VerifyRequest carries the fields the checkout widget returns on success.
type VerifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (r *VerifyRequest) Validate() error {
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.PaymentID = strings.TrimSpace(r.PaymentID)
	r.Signature = strings.TrimSpace(r.Signature)
	if r.OrderID == "" || r.PaymentID == "" || r.Signature == "" {
		return errors.Join(ErrInvalidRequest, errors.New("order id, payment id and signature are required"))
	}
	return nil
}
