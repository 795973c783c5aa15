package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stayflow/gateway/internal/app/middleware"
	"github.com/stayflow/gateway/internal/app/models"
)

type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) Prebook(ctx context.Context, bookHash, residency, language string) (*models.Order, error) {
	args := m.Called(ctx, bookHash, residency, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) Form(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) Finish(ctx context.Context, partnerOrderID, paymentType string, guests []models.BookingGuest) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID, paymentType, guests)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) Await(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) Status(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) Cancel(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockBookingService) OrderInfo(ctx context.Context, partnerOrderID string) (json.RawMessage, error) {
	args := m.Called(ctx, partnerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockBookingService) HandleWebhook(ctx context.Context, orderID int64, partnerOrderID, status string) error {
	args := m.Called(ctx, orderID, partnerOrderID, status)
	return args.Error(0)
}

func newBookingRouter(svc BookingService) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	h := NewBookingHandlers(svc, nil)
	r.POST("/prebook", h.Prebook)
	r.POST("/order/form", h.Form)
	r.POST("/order/finish", h.Finish)
	r.POST("/order/status", h.Status)
	r.POST("/order/cancel", h.Cancel)
	r.POST("/webhook/booking-status", h.Webhook)
	return r
}

func TestPrebookEndpoint(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Prebook", mock.Anything, "hash-1", "us", "en").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderPriced, BookHash: "hash-1",
	}, nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/prebook",
		`{"book_hash":"hash-1","residency":"us","language":"en"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool         `json:"success"`
		Data    models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.OrderPriced, resp.Data.State)
}

func TestPrebookEndpointRequiresBookHash(t *testing.T) {
	r := newBookingRouter(new(MockBookingService))
	w := doJSON(t, r, http.MethodPost, "/prebook", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormEndpoint(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Form", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderFormed,
	}, nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/form", `{"partner_order_id":"po-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestFinishEndpointWaitsWhenRequested(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Finish", mock.Anything, "po-1", "now", mock.Anything).Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderProcessing,
	}, nil)
	svc.On("Await", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderConfirmed,
	}, nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/finish",
		`{"partner_order_id":"po-1","payment_type":"now","guests":[{"first_name":"Ada","last_name":"Lovelace"}],"wait":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.OrderConfirmed, resp.Data.State)
	svc.AssertExpectations(t)
}

func TestFinishEndpointSandboxIs200WithFlag(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Finish", mock.Anything, "po-1", "", mock.Anything).
		Return(nil, models.ErrSandboxRestriction)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/finish",
		`{"partner_order_id":"po-1","guests":[{"first_name":"Ada","last_name":"Lovelace"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool `json:"success"`
		Meta    Meta `json:"meta"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.True(t, resp.Meta.Sandbox)
	assert.Equal(t, "sandbox-restriction", resp.Error.Code)
}

func TestStatusEndpointWithInfo(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Status", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderConfirmed,
	}, nil)
	svc.On("OrderInfo", mock.Anything, "po-1").
		Return(json.RawMessage(`{"order_id":42}`), nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/status",
		`{"partner_order_id":"po-1","with_info":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data models.Order    `json:"data"`
		Info json.RawMessage `json:"info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.OrderConfirmed, resp.Data.State)
	assert.JSONEq(t, `{"order_id":42}`, string(resp.Info))
}

func TestStatusEndpointInfoFailureIsNonFatal(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Status", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderProcessing,
	}, nil)
	svc.On("OrderInfo", mock.Anything, "po-1").Return(nil, models.ErrUpstream)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/status",
		`{"partner_order_id":"po-1","with_info":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookEndpointAcknowledgesNestedPayload(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("HandleWebhook", mock.Anything, int64(42), "", "completed").Return(nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/webhook/booking-status",
		`{"data":{"order_id":42,"status":"completed"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestWebhookEndpointForwardsPartnerOrderID(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("HandleWebhook", mock.Anything, int64(0), "po-1", "completed").Return(nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/webhook/booking-status",
		`{"partner_order_id":"po-1","status":"completed"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestWebhookEndpointAcknowledgesGarbage(t *testing.T) {
	svc := new(MockBookingService)
	r := newBookingRouter(svc)

	w := doJSON(t, r, http.MethodPost, "/webhook/booking-status", `not json`)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookEndpointAcknowledgesIngestionFailure(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("HandleWebhook", mock.Anything, int64(42), "", "completed").
		Return(models.ErrBackendUnavailable)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/webhook/booking-status",
		`{"order_id":42,"status":"completed"}`)
	assert.Equal(t, http.StatusOK, w.Code, "webhook never asks the upstream to retry")
}

func TestCancelEndpoint(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Cancel", mock.Anything, "po-1").Return(&models.Order{
		PartnerOrderID: "po-1", State: models.OrderCancelled,
	}, nil)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/cancel", `{"partner_order_id":"po-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestStatusEndpointNotFound(t *testing.T) {
	svc := new(MockBookingService)
	svc.On("Status", mock.Anything, "po-missing").Return(nil, models.ErrNotFound)

	r := newBookingRouter(svc)
	w := doJSON(t, r, http.MethodPost, "/order/status", `{"partner_order_id":"po-missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
