package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository reads the catalog tables and stores call requests and opt-ins.
type PostgresRepository struct {
	db  pgxQuerier
	now func() time.Time
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return newPostgresRepository(pool)
}

func newPostgresRepository(db pgxQuerier) *PostgresRepository {
	if db == nil {
		panic("catalog: db required")
	}
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) ListServices(ctx context.Context, category string) ([]Service, error) {
	query := `
		SELECT id, category, name, COALESCE(description, '')
		FROM tool_catalog
		WHERE active AND ($1 = '' OR lower(category) = lower($1))
		ORDER BY category, name
	`
	rows, err := r.db.Query(ctx, query, strings.TrimSpace(category))
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	out := []Service{}
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Category, &s.Name, &s.Description); err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListPricing(ctx context.Context, toolID string) ([]Price, error) {
	query := `
		SELECT id, tool_id, tier, amount_paise, currency, COALESCE(description, '')
		FROM pricing
		WHERE lower(tool_id) = lower($1)
		ORDER BY amount_paise
	`
	rows, err := r.db.Query(ctx, query, strings.TrimSpace(toolID))
	if err != nil {
		return nil, fmt.Errorf("catalog: list pricing: %w", err)
	}
	defer rows.Close()

	out := []Price{}
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.ToolID, &p.Tier, &p.AmountPaise, &p.Currency, &p.Description); err != nil {
			return nil, fmt.Errorf("catalog: scan price: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list pricing: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetContent(ctx context.Context, key string) (*Content, error) {
	query := `SELECT key, title, body, updated_at FROM site_content WHERE lower(key) = lower($1)`
	var c Content
	if err := r.db.QueryRow(ctx, query, strings.TrimSpace(key)).Scan(&c.Key, &c.Title, &c.Body, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("catalog: get content: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListOpenSlots(ctx context.Context, day time.Time) ([]Slot, error) {
	now := r.now()
	from, to := slotWindow(day, now)
	if from.Before(now) {
		from = now
	}
	query := `
		SELECT id, starts_at, ends_at
		FROM booking_slots
		WHERE NOT booked AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("catalog: list slots: %w", err)
	}
	defer rows.Close()

	out := []Slot{}
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.StartsAt, &s.EndsAt); err != nil {
			return nil, fmt.Errorf("catalog: scan slot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list slots: %w", err)
	}
	return out, nil
}

// ScheduleCall stores the request and, when the preferred time names an open
// slot, books that slot in the same transaction.
func (r *PostgresRepository) ScheduleCall(ctx context.Context, req ScheduleCallRequest) (*ScheduledCall, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	call := &ScheduledCall{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		PreferredTime: strings.TrimSpace(req.PreferredTime),
		Topic:         strings.TrimSpace(req.Topic),
		Status:        CallStatusRequested,
		SessionID:     req.SessionID,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin schedule call: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var slotID *string
	if start, ok := preferredSlotStart(req.PreferredTime); ok {
		var id string
		err := tx.QueryRow(ctx,
			`UPDATE booking_slots SET booked = TRUE WHERE starts_at = $1 AND NOT booked RETURNING id`,
			start,
		).Scan(&id)
		switch {
		case err == nil:
			slotID = &id
			call.SlotID = id
			call.Status = CallStatusConfirmed
		case errors.Is(err, pgx.ErrNoRows):
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM booking_slots WHERE starts_at = $1)`, start).Scan(&exists); err != nil {
				return nil, fmt.Errorf("catalog: check slot: %w", err)
			}
			if exists {
				return nil, ErrSlotUnavailable
			}
		default:
			return nil, fmt.Errorf("catalog: book slot: %w", err)
		}
	}

	query := `
		INSERT INTO scheduled_calls (id, name, email, phone, preferred_time, topic, slot_id, status, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		call.ID,
		call.Name,
		call.Email,
		call.Phone,
		call.PreferredTime,
		call.Topic,
		slotID,
		call.Status,
		call.SessionID,
	).Scan(&call.CreatedAt); err != nil {
		return nil, fmt.Errorf("catalog: insert scheduled call: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("catalog: commit schedule call: %w", err)
	}
	committed = true
	return call, nil
}

func (r *PostgresRepository) RecordWhatsAppOptIn(ctx context.Context, req WhatsAppOptInRequest) (*WhatsAppOptIn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	optIn := &WhatsAppOptIn{
		ID:        uuid.NewString(),
		Phone:     strings.TrimSpace(req.Phone),
		Name:      strings.TrimSpace(req.Name),
		SessionID: req.SessionID,
	}
	query := `
		INSERT INTO whatsapp_optins (id, phone, name, session_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name, session_id = EXCLUDED.session_id
		RETURNING id, created_at
	`
	if err := r.db.QueryRow(ctx, query, optIn.ID, optIn.Phone, optIn.Name, optIn.SessionID).Scan(&optIn.ID, &optIn.CreatedAt); err != nil {
		return nil, fmt.Errorf("catalog: record whatsapp opt-in: %w", err)
	}
	return optIn, nil
}
