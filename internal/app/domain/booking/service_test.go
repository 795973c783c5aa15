package booking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/upstream"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, order models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) GetByOrderID(ctx context.Context, orderID int64) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockRepository) Update(ctx context.Context, order models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

type MockUpstream struct {
	mock.Mock
}

func (m *MockUpstream) Prebook(ctx context.Context, bookHash, residency, language string) (*upstream.PrebookResult, error) {
	args := m.Called(ctx, bookHash, residency, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upstream.PrebookResult), args.Error(1)
}

func (m *MockUpstream) BookingForm(ctx context.Context, bookHash, partnerOrderID, language string) (*upstream.BookingFormResult, error) {
	args := m.Called(ctx, bookHash, partnerOrderID, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upstream.BookingFormResult), args.Error(1)
}

func (m *MockUpstream) BookingFinish(ctx context.Context, orderID, itemID int64, partnerOrderID, paymentType string, guests []models.BookingGuest, language string) error {
	args := m.Called(ctx, orderID, itemID, partnerOrderID, paymentType, guests, language)
	return args.Error(0)
}

func (m *MockUpstream) BookingStatus(ctx context.Context, orderID int64) (*upstream.BookingStatusResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upstream.BookingStatusResult), args.Error(1)
}

func (m *MockUpstream) OrderInfo(ctx context.Context, orderID int64) (json.RawMessage, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockUpstream) OrderCancel(ctx context.Context, orderID int64) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func newTestService(t *testing.T) (*Service, *MockRepository, *MockUpstream) {
	t.Helper()
	repo := new(MockRepository)
	up := new(MockUpstream)
	svc := NewService(repo, up, nil)
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return svc, repo, up
}

func int64ptr(v int64) *int64 { return &v }

func guests() []models.BookingGuest {
	return []models.BookingGuest{{FirstName: "Ada", LastName: "Lovelace"}}
}

func TestPrebookCreatesPricedOrder(t *testing.T) {
	svc, repo, up := newTestService(t)

	up.On("Prebook", mock.Anything, "hash-1", "us", "en").
		Return(&upstream.PrebookResult{BookingHash: "bh-1", PriceChanged: false}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderPriced && o.BookHash == "hash-1" && o.BookingHash == "bh-1"
	})).Return(nil)

	order, err := svc.Prebook(context.Background(), "hash-1", "us", "en")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPriced, order.State)
	assert.NotEmpty(t, order.PartnerOrderID)
	repo.AssertExpectations(t)
}

func TestPrebookSurfacesPriceChange(t *testing.T) {
	svc, repo, up := newTestService(t)

	up.On("Prebook", mock.Anything, "hash-1", "", "").
		Return(&upstream.PrebookResult{BookingHash: "bh-1", PriceChanged: true}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	order, err := svc.Prebook(context.Background(), "hash-1", "", "")
	require.NoError(t, err)
	assert.True(t, order.PriceChanged, "price change is reported, not rejected")
}

func TestPrebookMintsUniquePartnerOrderIDs(t *testing.T) {
	svc, repo, up := newTestService(t)

	up.On("Prebook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&upstream.PrebookResult{BookingHash: "bh"}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		order, err := svc.Prebook(context.Background(), "hash", "", "")
		require.NoError(t, err)
		assert.False(t, seen[order.PartnerOrderID], "partner order ids must be unique")
		seen[order.PartnerOrderID] = true
	}
}

func TestFormAssignsUpstreamIDs(t *testing.T) {
	svc, repo, up := newTestService(t)

	repo.On("Get", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", BookHash: "hash-1", BookingHash: "bh-1", State: models.OrderPriced,
	}, nil)
	up.On("BookingForm", mock.Anything, "bh-1", "po-1", "").
		Return(&upstream.BookingFormResult{OrderID: 42, ItemID: 7,
			PaymentTypes: json.RawMessage(`[{"type":"now"}]`)}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderFormed && o.OrderID != nil && *o.OrderID == 42
	})).Return(nil)

	order, err := svc.Form(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFormed, order.State)
	assert.Equal(t, int64(7), *order.ItemID)
	repo.AssertExpectations(t)
}

func TestFormReplayReturnsStoredOrder(t *testing.T) {
	svc, repo, up := newTestService(t)

	repo.On("Get", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderFormed,
		OrderID: int64ptr(42), ItemID: int64ptr(7),
		PaymentTypes: json.RawMessage(`[{"type":"now"}]`),
	}, nil)

	order, err := svc.Form(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderFormed, order.State)
	assert.Equal(t, int64(42), *order.OrderID)
	assert.Equal(t, int64(7), *order.ItemID)
	up.AssertNotCalled(t, "BookingForm", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestFormRejectsOrderWithoutUpstreamIDs(t *testing.T) {
	svc, repo, _ := newTestService(t)

	repo.On("Get", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderNew,
	}, nil)

	_, err := svc.Form(context.Background(), "po-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func formedOrder() *models.Order {
	return &models.Order{
		PartnerOrderID: "po-1",
		OrderID:        int64ptr(42),
		ItemID:         int64ptr(7),
		BookHash:       "hash-1",
		State:          models.OrderFormed,
		PaymentTypes:   json.RawMessage(`[{"type":"deposit"},{"type":"now"}]`),
	}
}

func TestFinishMovesToProcessing(t *testing.T) {
	svc, repo, up := newTestService(t)

	repo.On("Get", mock.Anything, "po-1").Return(formedOrder(), nil)
	up.On("BookingFinish", mock.Anything, int64(42), int64(7), "po-1", "now", guests(), "").Return(nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderProcessing && o.PaymentType == "now"
	})).Return(nil)

	order, err := svc.Finish(context.Background(), "po-1", "", guests())
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.State)
	assert.Equal(t, "now", order.PaymentType, "auto-pick prefers pay-now")
	up.AssertExpectations(t)
}

func TestFinishIsIdempotentOnceProcessing(t *testing.T) {
	svc, repo, up := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)

	order, err := svc.Finish(context.Background(), "po-1", "", guests())
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.State)
	up.AssertNotCalled(t, "BookingFinish", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinishSandboxLeavesOrderFormed(t *testing.T) {
	svc, repo, up := newTestService(t)

	repo.On("Get", mock.Anything, "po-1").Return(formedOrder(), nil)
	up.On("BookingFinish", mock.Anything, int64(42), int64(7), "po-1", "now", guests(), "").
		Return(models.ErrSandboxRestriction)

	order, err := svc.Finish(context.Background(), "po-1", "", guests())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSandboxRestriction))
	assert.Equal(t, models.OrderFormed, order.State, "sandbox restriction must not advance the order")
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestFinishRequiresGuests(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.On("Get", mock.Anything, "po-1").Return(formedOrder(), nil)

	_, err := svc.Finish(context.Background(), "po-1", "now", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestStatusPollAppliesTerminalState(t *testing.T) {
	svc, repo, up := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)
	up.On("BookingStatus", mock.Anything, int64(42)).
		Return(&upstream.BookingStatusResult{OrderID: 42, Status: "ok"}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderConfirmed
	})).Return(nil)

	order, err := svc.Status(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, order.State)
}

func TestStatusPollFailureKeepsStoredState(t *testing.T) {
	svc, repo, up := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)
	up.On("BookingStatus", mock.Anything, int64(42)).Return(nil, models.ErrUpstream)

	order, err := svc.Status(context.Background(), "po-1")
	require.NoError(t, err, "a failed poll is not an order failure")
	assert.Equal(t, models.OrderProcessing, order.State)
}

func TestAwaitPollsUntilConfirmed(t *testing.T) {
	svc, repo, up := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)

	up.On("BookingStatus", mock.Anything, int64(42)).
		Return(&upstream.BookingStatusResult{OrderID: 42, Status: "processing"}, nil).Twice()
	up.On("BookingStatus", mock.Anything, int64(42)).
		Return(&upstream.BookingStatusResult{OrderID: 42, Status: "ok"}, nil).Once()
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)

	order, err := svc.Await(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, order.State)
	up.AssertExpectations(t)
}

func TestAwaitBudgetExhaustionFailsOrder(t *testing.T) {
	svc, repo, up := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)
	up.On("BookingStatus", mock.Anything, int64(42)).
		Return(&upstream.BookingStatusResult{OrderID: 42, Status: "processing"}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderFailed
	})).Return(nil)

	clock := time.Now()
	svc.now = func() time.Time { return clock }
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return nil
	}

	order, err := svc.Await(context.Background(), "po-1")
	require.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, models.OrderFailed, order.State)
	repo.AssertExpectations(t)
}

func TestCancelConfirmedOrder(t *testing.T) {
	svc, repo, up := newTestService(t)

	confirmed := formedOrder()
	confirmed.State = models.OrderConfirmed
	repo.On("Get", mock.Anything, "po-1").Return(confirmed, nil)
	up.On("OrderCancel", mock.Anything, int64(42)).Return(nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderCancelled
	})).Return(nil)

	order, err := svc.Cancel(context.Background(), "po-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, order.State)
}

func TestCancelPricedOrderIsRejected(t *testing.T) {
	svc, repo, up := newTestService(t)

	priced := &models.Order{PartnerOrderID: "po-1", State: models.OrderPriced}
	repo.On("Get", mock.Anything, "po-1").Return(priced, nil)

	_, err := svc.Cancel(context.Background(), "po-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
	up.AssertNotCalled(t, "OrderCancel", mock.Anything, mock.Anything)
}

func TestWebhookAppliesTerminalStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("GetByOrderID", mock.Anything, int64(42)).Return(processing, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderConfirmed
	})).Return(nil)

	require.NoError(t, svc.HandleWebhook(context.Background(), 42, "", "completed"))
	repo.AssertExpectations(t)
}

func TestWebhookResolvesByPartnerOrderID(t *testing.T) {
	svc, repo, _ := newTestService(t)

	processing := formedOrder()
	processing.State = models.OrderProcessing
	repo.On("Get", mock.Anything, "po-1").Return(processing, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(o models.Order) bool {
		return o.State == models.OrderConfirmed
	})).Return(nil)

	require.NoError(t, svc.HandleWebhook(context.Background(), 0, "po-1", "completed"))
	repo.AssertNotCalled(t, "GetByOrderID", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestWebhookWithoutIdentifierIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.HandleWebhook(context.Background(), 0, "", "completed"))
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "GetByOrderID", mock.Anything, mock.Anything)
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)

	confirmed := formedOrder()
	confirmed.State = models.OrderConfirmed
	repo.On("GetByOrderID", mock.Anything, int64(42)).Return(confirmed, nil)

	require.NoError(t, svc.HandleWebhook(context.Background(), 42, "", "completed"))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestWebhookUnknownOrderIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.On("GetByOrderID", mock.Anything, int64(99)).Return(nil, models.ErrNotFound)

	require.NoError(t, svc.HandleWebhook(context.Background(), 99, "", "completed"))
}

func TestWebhookBackwardTransitionIsIgnored(t *testing.T) {
	svc, repo, _ := newTestService(t)

	failed := formedOrder()
	failed.State = models.OrderFailed
	repo.On("GetByOrderID", mock.Anything, int64(42)).Return(failed, nil)

	require.NoError(t, svc.HandleWebhook(context.Background(), 42, "", "completed"))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestStateMachineMonotonicity(t *testing.T) {
	assert.True(t, models.OrderNew.CanTransition(models.OrderPriced))
	assert.True(t, models.OrderPriced.CanTransition(models.OrderFormed))
	assert.True(t, models.OrderFormed.CanTransition(models.OrderProcessing))
	assert.True(t, models.OrderProcessing.CanTransition(models.OrderConfirmed))
	assert.True(t, models.OrderProcessing.CanTransition(models.OrderFailed))
	assert.True(t, models.OrderConfirmed.CanTransition(models.OrderCancelled))

	assert.False(t, models.OrderConfirmed.CanTransition(models.OrderProcessing))
	assert.False(t, models.OrderFailed.CanTransition(models.OrderConfirmed))
	assert.False(t, models.OrderNew.CanTransition(models.OrderFormed))
	assert.False(t, models.OrderPriced.CanTransition(models.OrderCancelled))
}

func TestPickPaymentType(t *testing.T) {
	assert.Equal(t, "now", pickPaymentType(json.RawMessage(`[{"type":"deposit"},{"type":"now"}]`)))
	assert.Equal(t, "hotel", pickPaymentType(json.RawMessage(`[{"type":"hotel"},{"type":"deposit"}]`)))
	assert.Equal(t, "other", pickPaymentType(json.RawMessage(`[{"type":"other"}]`)))
	assert.Equal(t, "", pickPaymentType(json.RawMessage(`[]`)))
	assert.Equal(t, "", pickPaymentType(nil))
}
