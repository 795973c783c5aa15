// Package booking owns the order state machine: prebook, form, finish,
// status polling, cancellation and webhook ingestion. Orders persist in
// Postgres keyed by the locally minted partner order id.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stayflow/gateway/internal/app/models"
)

// DB is the pgx surface the repository needs; satisfied by *pgxpool.Pool and
// by pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	Create(ctx context.Context, order models.Order) error
	Get(ctx context.Context, partnerOrderID string) (*models.Order, error)
	GetByOrderID(ctx context.Context, orderID int64) (*models.Order, error)
	Update(ctx context.Context, order models.Order) error
}

type RepositoryImpl struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &RepositoryImpl{db: db}
}

const orderColumns = `partner_order_id, order_id, item_id, book_hash, booking_hash, state,
	payment_type, payment_types, guests, price_changed, residency, language,
	created_at, last_transition_at`

func (r *RepositoryImpl) Create(ctx context.Context, order models.Order) error {
	guests, err := json.Marshal(order.Guests)
	if err != nil {
		return fmt.Errorf("encode guests: %w", models.ErrInternal)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO orders (partner_order_id, order_id, item_id, book_hash, booking_hash, state,
			payment_type, payment_types, guests, price_changed, residency, language,
			created_at, last_transition_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
	`, order.PartnerOrderID, order.OrderID, order.ItemID, order.BookHash, order.BookingHash,
		string(order.State), order.PaymentType, []byte(order.PaymentTypes), guests,
		order.PriceChanged, order.Residency, order.Language)
	if err != nil {
		return fmt.Errorf("create order %s: %v: %w", order.PartnerOrderID, err, models.ErrBackendUnavailable)
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE partner_order_id = $1`, partnerOrderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", partnerOrderID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("read order %s: %v: %w", partnerOrderID, err, models.ErrBackendUnavailable)
	}
	return order, nil
}

func (r *RepositoryImpl) GetByOrderID(ctx context.Context, orderID int64) (*models.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order id %d: %w", orderID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("read order id %d: %v: %w", orderID, err, models.ErrBackendUnavailable)
	}
	return order, nil
}

func (r *RepositoryImpl) Update(ctx context.Context, order models.Order) error {
	guests, err := json.Marshal(order.Guests)
	if err != nil {
		return fmt.Errorf("encode guests: %w", models.ErrInternal)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET order_id = $2, item_id = $3, booking_hash = $4, state = $5,
			payment_type = $6, payment_types = $7, guests = $8, price_changed = $9,
			last_transition_at = now()
		WHERE partner_order_id = $1
	`, order.PartnerOrderID, order.OrderID, order.ItemID, order.BookingHash, string(order.State),
		order.PaymentType, []byte(order.PaymentTypes), guests, order.PriceChanged)
	if err != nil {
		return fmt.Errorf("update order %s: %v: %w", order.PartnerOrderID, err, models.ErrBackendUnavailable)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", order.PartnerOrderID, models.ErrNotFound)
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o            models.Order
		state        string
		paymentTypes []byte
		guests       []byte
	)
	err := row.Scan(&o.PartnerOrderID, &o.OrderID, &o.ItemID, &o.BookHash, &o.BookingHash, &state,
		&o.PaymentType, &paymentTypes, &guests, &o.PriceChanged, &o.Residency, &o.Language,
		&o.CreatedAt, &o.LastTransitionAt)
	if err != nil {
		return nil, err
	}
	o.State = models.OrderState(state)
	o.PaymentTypes = paymentTypes
	if len(guests) > 0 {
		_ = json.Unmarshal(guests, &o.Guests)
	}
	return &o, nil
}
