package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository stores transactions and payment logs with pgx.
type PostgresRepository struct {
	db pgxQuerier
}

// NewPostgresRepository creates a repository backed by pgx.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepository(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `id, order_id, COALESCE(payment_id, ''), tool_id, email, name,
	amount_paise, currency, payment_status, created_at, updated_at`

func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO transactions (id, order_id, tool_id, email, name, amount_paise, currency, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, tx.ID, tx.OrderID, tx.ToolID, tx.Email, tx.Name, tx.AmountPaise, tx.Currency, tx.Status).
		Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByOrderID(ctx context.Context, orderID string) (*Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("payments: load by order id: %w", err)
	}
	return tx, nil
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, orderID, paymentID string, entry PaymentLog) (*Transaction, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("payments: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = dbTx.Rollback(ctx)
		}
	}()

	tx, err := scanTransaction(dbTx.QueryRow(ctx, `
		UPDATE transactions
		SET payment_status = $2, payment_id = $3, updated_at = NOW()
		WHERE order_id = $1
		RETURNING `+transactionColumns, orderID, StatusPaid, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("payments: mark paid: %w", err)
	}

	if _, err := dbTx.Exec(ctx, `
		INSERT INTO payment_logs (id, transaction_id, order_id, payment_id, event, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), tx.ID, orderID, paymentID, entry.Event, entry.Payload); err != nil {
		return nil, fmt.Errorf("payments: insert payment log: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("payments: commit: %w", err)
	}
	committed = true
	return tx, nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var tx Transaction
	if err := row.Scan(
		&tx.ID,
		&tx.OrderID,
		&tx.PaymentID,
		&tx.ToolID,
		&tx.Email,
		&tx.Name,
		&tx.AmountPaise,
		&tx.Currency,
		&tx.Status,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &tx, nil
}
