package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayflow/gateway/internal/app/models"
)

func newRepo(t *testing.T) (Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func orderRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"partner_order_id", "order_id", "item_id", "book_hash", "booking_hash", "state",
		"payment_type", "payment_types", "guests", "price_changed", "residency", "language",
		"created_at", "last_transition_at",
	})
}

func TestCreateOrder(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO orders").
		WithArgs("po-1", (*int64)(nil), (*int64)(nil), "hash-1", "bh-1", "priced",
			"", []byte(nil), pgxmock.AnyArg(), false, "us", "en").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), models.Order{
		PartnerOrderID: "po-1",
		BookHash:       "hash-1",
		BookingHash:    "bh-1",
		State:          models.OrderPriced,
		Residency:      "us",
		Language:       "en",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderScansNullableIDs(t *testing.T) {
	repo, mock := newRepo(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE partner_order_id").
		WithArgs("po-1").
		WillReturnRows(orderRows().AddRow(
			"po-1", nil, nil, "hash-1", "bh-1", "priced",
			"", []byte(`null`), []byte(`[]`), false, "us", "en", now, now))

	order, err := repo.Get(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Nil(t, order.OrderID)
	assert.Equal(t, models.OrderPriced, order.State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByUpstreamID(t *testing.T) {
	repo, mock := newRepo(t)

	now := time.Now()
	oid := int64(42)
	iid := int64(7)
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE order_id").
		WithArgs(int64(42)).
		WillReturnRows(orderRows().AddRow(
			"po-1", &oid, &iid, "hash-1", "bh-1", "processing",
			"now", []byte(`[{"type":"now"}]`), []byte(`[{"first_name":"Ada","last_name":"Lovelace"}]`),
			false, "us", "en", now, now))

	order, err := repo.GetByOrderID(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, order.OrderID)
	assert.Equal(t, int64(42), *order.OrderID)
	require.Len(t, order.Guests, 1)
	assert.Equal(t, "Ada", order.Guests[0].FirstName)
}

func TestGetOrderMiss(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE partner_order_id").
		WithArgs("po-missing").
		WillReturnRows(orderRows())

	_, err := repo.Get(context.Background(), "po-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdateMissingOrderIsNotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE orders SET").
		WithArgs("po-missing", (*int64)(nil), (*int64)(nil), "", "priced", "",
			[]byte(nil), pgxmock.AnyArg(), false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), models.Order{
		PartnerOrderID: "po-missing",
		State:          models.OrderPriced,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
