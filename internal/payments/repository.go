package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists transactions and their payment logs.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction) error
	GetByOrderID(ctx context.Context, orderID string) (*Transaction, error)
	// MarkPaid moves the transaction to paid and writes the log row in one step.
	MarkPaid(ctx context.Context, orderID, paymentID string, entry PaymentLog) (*Transaction, error)
}

// MemoryRepository keeps transactions in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Transaction
	order map[string]string
	logs  []PaymentLog
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*Transaction),
		order: make(map[string]string),
		now:   time.Now,
	}
}

func (r *MemoryRepository) CreateTransaction(_ context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := r.now().UTC()
	tx.CreatedAt, tx.UpdatedAt = now, now
	stored := *tx
	r.byID[tx.ID] = &stored
	r.order[tx.OrderID] = tx.ID
	return nil
}

func (r *MemoryRepository) GetByOrderID(_ context.Context, orderID string) (*Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.order[orderID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *MemoryRepository) MarkPaid(_ context.Context, orderID, paymentID string, entry PaymentLog) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.order[orderID]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	tx := r.byID[id]
	now := r.now().UTC()
	tx.Status = StatusPaid
	tx.PaymentID = paymentID
	tx.UpdatedAt = now

	entry.ID = uuid.NewString()
	entry.TransactionID = tx.ID
	entry.CreatedAt = now
	r.logs = append(r.logs, entry)

	out := *tx
	return &out, nil
}

// Logs returns a copy of the payment log.
func (r *MemoryRepository) Logs() []PaymentLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PaymentLog(nil), r.logs...)
}
