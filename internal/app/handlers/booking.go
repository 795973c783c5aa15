package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/observability/metrics"
)

// BookingService is the slice of the booking layer the handlers use.
type BookingService interface {
	Prebook(ctx context.Context, bookHash, residency, language string) (*models.Order, error)
	Form(ctx context.Context, partnerOrderID string) (*models.Order, error)
	Finish(ctx context.Context, partnerOrderID, paymentType string, guests []models.BookingGuest) (*models.Order, error)
	Await(ctx context.Context, partnerOrderID string) (*models.Order, error)
	Status(ctx context.Context, partnerOrderID string) (*models.Order, error)
	Cancel(ctx context.Context, partnerOrderID string) (*models.Order, error)
	OrderInfo(ctx context.Context, partnerOrderID string) (json.RawMessage, error)
	HandleWebhook(ctx context.Context, orderID int64, partnerOrderID, status string) error
}

type BookingHandlers struct {
	svc    BookingService
	logger *zap.Logger
}

func NewBookingHandlers(svc BookingService, logger *zap.Logger) *BookingHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandlers{svc: svc, logger: logger}
}

type prebookRequest struct {
	BookHash  string `json:"book_hash" binding:"required"`
	Residency string `json:"residency"`
	Language  string `json:"language"`
}

// Prebook handles POST /prebook.
func (h *BookingHandlers) Prebook(c *gin.Context) {
	start := time.Now()

	var req prebookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	order, err := h.svc.Prebook(c.Request.Context(), req.BookHash, req.Residency, req.Language)
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"data": order})
}

type orderRequest struct {
	PartnerOrderID string `json:"partner_order_id" binding:"required"`
}

// Form handles POST /order/form.
func (h *BookingHandlers) Form(c *gin.Context) {
	start := time.Now()

	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	order, err := h.svc.Form(c.Request.Context(), req.PartnerOrderID)
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"data": order})
}

type finishRequest struct {
	PartnerOrderID string                `json:"partner_order_id" binding:"required"`
	PaymentType    string                `json:"payment_type"`
	Guests         []models.BookingGuest `json:"guests" binding:"required"`
	Wait           bool                  `json:"wait"`
}

// Finish handles POST /order/finish. With wait set the call blocks on the
// poller until the order reaches a terminal state or the polling budget runs
// out.
func (h *BookingHandlers) Finish(c *gin.Context) {
	start := time.Now()

	var req finishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	order, err := h.svc.Finish(c.Request.Context(), req.PartnerOrderID, req.PaymentType, req.Guests)
	if err != nil {
		respondError(c, start, err)
		return
	}

	metrics.Get().BookingsTotal.Add(c.Request.Context(), 1)

	if req.Wait && order.State == models.OrderProcessing {
		order, err = h.svc.Await(c.Request.Context(), req.PartnerOrderID)
		if err != nil {
			respondError(c, start, err)
			return
		}
	}
	respondOK(c, start, gin.H{"data": order})
}

type statusRequest struct {
	PartnerOrderID string `json:"partner_order_id" binding:"required"`
	WithInfo       bool   `json:"with_info"`
}

// Status handles POST /order/status: the stored order plus, on request, the
// raw upstream order record. A processing order is polled once.
func (h *BookingHandlers) Status(c *gin.Context) {
	start := time.Now()

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	order, err := h.svc.Status(c.Request.Context(), req.PartnerOrderID)
	if err != nil {
		respondError(c, start, err)
		return
	}

	body := gin.H{"data": order}
	if req.WithInfo {
		// Informational only; an upstream hiccup does not fail the status read.
		if info, ierr := h.svc.OrderInfo(c.Request.Context(), req.PartnerOrderID); ierr == nil {
			body["info"] = info
		} else {
			h.logger.Warn("order info lookup failed",
				zap.String("partner_order_id", req.PartnerOrderID), zap.Error(ierr))
		}
	}
	respondOK(c, start, body)
}

// Cancel handles POST /order/cancel.
func (h *BookingHandlers) Cancel(c *gin.Context) {
	start := time.Now()

	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, start, err)
		return
	}

	order, err := h.svc.Cancel(c.Request.Context(), req.PartnerOrderID)
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"data": order})
}

type webhookRequest struct {
	OrderID        int64  `json:"order_id"`
	PartnerOrderID string `json:"partner_order_id"`
	Status         string `json:"status"`
	Data           *struct {
		OrderID        int64  `json:"order_id"`
		PartnerOrderID string `json:"partner_order_id"`
		Status         string `json:"status"`
	} `json:"data"`
}

// Webhook handles POST /webhook/booking-status. Deliveries carry order_id or
// partner_order_id, flat or nested under data. The delivery is always
// acknowledged with 200, even when ingestion fails: the upstream must not
// retry for gateway-internal problems.
func (h *BookingHandlers) Webhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("unparseable webhook payload", zap.Error(err))
		c.JSON(200, gin.H{"success": true})
		return
	}

	orderID, partnerOrderID, status := req.OrderID, req.PartnerOrderID, req.Status
	if req.Data != nil {
		if req.Data.OrderID != 0 {
			orderID = req.Data.OrderID
		}
		if req.Data.PartnerOrderID != "" {
			partnerOrderID = req.Data.PartnerOrderID
		}
		if req.Data.Status != "" {
			status = req.Data.Status
		}
	}

	metrics.Get().WebhooksTotal.Add(c.Request.Context(), 1)

	if err := h.svc.HandleWebhook(c.Request.Context(), orderID, partnerOrderID, status); err != nil {
		h.logger.Error("webhook ingestion failed",
			zap.Int64("order_id", orderID),
			zap.String("partner_order_id", partnerOrderID),
			zap.Error(err))
	}
	c.JSON(200, gin.H{"success": true})
}
