package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/upstream"
)

// Polling cadence for the asynchronous finish pipeline. The budget bounds a
// single Await call; the order keeps progressing via webhooks either way.
const (
	pollInterval = 2500 * time.Millisecond
	pollBudget   = 6 * time.Minute
)

// Upstream is the slice of the upstream API the booking layer uses.
type Upstream interface {
	Prebook(ctx context.Context, bookHash, residency, language string) (*upstream.PrebookResult, error)
	BookingForm(ctx context.Context, bookHash, partnerOrderID, language string) (*upstream.BookingFormResult, error)
	BookingFinish(ctx context.Context, orderID, itemID int64, partnerOrderID, paymentType string, guests []models.BookingGuest, language string) error
	BookingStatus(ctx context.Context, orderID int64) (*upstream.BookingStatusResult, error)
	OrderInfo(ctx context.Context, orderID int64) (json.RawMessage, error)
	OrderCancel(ctx context.Context, orderID int64) error
}

type Service struct {
	repo     Repository
	upstream Upstream
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewService(repo Repository, up Upstream, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		upstream: up,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// mintPartnerOrderID builds a locally unique order id: a unix timestamp for
// operator readability plus a uuid suffix for uniqueness.
func (s *Service) mintPartnerOrderID() string {
	return fmt.Sprintf("%d-%s", s.now().Unix(), uuid.NewString()[:8])
}

func (s *Service) transition(order *models.Order, next models.OrderState) error {
	if !order.State.CanTransition(next) {
		return fmt.Errorf("order %s cannot move %s -> %s: %w",
			order.PartnerOrderID, order.State, next, models.ErrInvalidInput)
	}
	order.State = next
	order.LastTransitionAt = s.now()
	return nil
}

// Prebook holds a rate and opens a new order in state priced. Every call
// mints a fresh partner order id; a price change is reported, not rejected.
func (s *Service) Prebook(ctx context.Context, bookHash, residency, language string) (*models.Order, error) {
	if bookHash == "" {
		return nil, fmt.Errorf("book_hash is required: %w", models.ErrInvalidInput)
	}

	result, err := s.upstream.Prebook(ctx, bookHash, residency, language)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		PartnerOrderID: s.mintPartnerOrderID(),
		BookHash:       bookHash,
		BookingHash:    result.BookingHash,
		State:          models.OrderPriced,
		PriceChanged:   result.PriceChanged,
		Residency:      residency,
		Language:       language,
		CreatedAt:      s.now(),
	}
	order.LastTransitionAt = order.CreatedAt

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	if result.PriceChanged {
		s.logger.Info("prebook reported a price change",
			zap.String("partner_order_id", order.PartnerOrderID))
	}
	return &order, nil
}

// Form opens the order at the upstream, which assigns order and item ids and
// enumerates the available payment types. A retried form on an order that
// already has its ids replays the stored record; the upstream never sees a
// second booking_form for the same partner order id.
func (s *Service) Form(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, partnerOrderID)
	if err != nil {
		return nil, err
	}
	if order.State != models.OrderPriced {
		if order.OrderID != nil {
			return order, nil
		}
		return nil, fmt.Errorf("order %s is %s, form requires priced: %w",
			partnerOrderID, order.State, models.ErrInvalidInput)
	}

	hash := order.BookingHash
	if hash == "" {
		hash = order.BookHash
	}
	result, err := s.upstream.BookingForm(ctx, hash, partnerOrderID, order.Language)
	if err != nil {
		return nil, err
	}

	order.OrderID = &result.OrderID
	order.ItemID = &result.ItemID
	order.PaymentTypes = result.PaymentTypes
	if err := s.transition(order, models.OrderFormed); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

// paymentTypePreference orders the auto-pick when the caller does not choose.
var paymentTypePreference = []string{"now", "hotel", "deposit"}

type paymentOption struct {
	Type string `json:"type"`
}

func pickPaymentType(available json.RawMessage) string {
	var options []paymentOption
	if err := json.Unmarshal(available, &options); err != nil || len(options) == 0 {
		return ""
	}
	for _, want := range paymentTypePreference {
		for _, opt := range options {
			if strings.EqualFold(opt.Type, want) {
				return opt.Type
			}
		}
	}
	return options[0].Type
}

// Finish starts the asynchronous booking. It is idempotent on a formed
// order that already reached processing: re-finishing a processing or
// terminal order is a no-op returning the current record, never a second
// upstream call.
func (s *Service) Finish(ctx context.Context, partnerOrderID, paymentType string, guests []models.BookingGuest) (*models.Order, error) {
	order, err := s.repo.Get(ctx, partnerOrderID)
	if err != nil {
		return nil, err
	}

	// Replays of a finish that already went out observe state, they do not
	// re-issue the upstream call.
	if order.State == models.OrderProcessing || order.State.Terminal() {
		return order, nil
	}
	if order.State != models.OrderFormed {
		return nil, fmt.Errorf("order %s is %s, finish requires formed: %w",
			partnerOrderID, order.State, models.ErrInvalidInput)
	}
	if order.OrderID == nil || order.ItemID == nil {
		return nil, fmt.Errorf("order %s has no upstream ids: %w", partnerOrderID, models.ErrInternal)
	}

	if len(guests) == 0 {
		guests = order.Guests
	}
	if len(guests) == 0 {
		return nil, fmt.Errorf("finish requires at least one guest: %w", models.ErrInvalidInput)
	}
	if paymentType == "" {
		paymentType = pickPaymentType(order.PaymentTypes)
	}
	if paymentType == "" {
		return nil, fmt.Errorf("order %s offers no payment types: %w", partnerOrderID, models.ErrInvalidInput)
	}

	err = s.upstream.BookingFinish(ctx, *order.OrderID, *order.ItemID, partnerOrderID, paymentType, guests, order.Language)
	if err != nil {
		// Sandbox keys cannot finish real bookings; the order stays formed
		// so the caller can retry against production credentials.
		if errors.Is(err, models.ErrSandboxRestriction) {
			return order, err
		}
		return nil, err
	}

	order.Guests = guests
	order.PaymentType = paymentType
	if err := s.transition(order, models.OrderProcessing); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

// mapUpstreamStatus translates the upstream's status vocabulary onto the
// state machine. Unknown strings are treated as still processing.
func mapUpstreamStatus(status string) models.OrderState {
	switch strings.ToLower(status) {
	case "ok", "completed", "confirmed", "success":
		return models.OrderConfirmed
	case "error", "failed", "rejected", "3ds_failed":
		return models.OrderFailed
	case "cancelled", "canceled":
		return models.OrderCancelled
	default:
		return models.OrderProcessing
	}
}

// Status returns the order, polling the upstream once when the order is
// still processing.
func (s *Service) Status(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, partnerOrderID)
	if err != nil {
		return nil, err
	}
	if order.State != models.OrderProcessing || order.OrderID == nil {
		return order, nil
	}

	result, err := s.upstream.BookingStatus(ctx, *order.OrderID)
	if err != nil {
		// The stored state is still the truth; a failed poll is not an
		// order failure.
		s.logger.Warn("status poll failed", zap.String("partner_order_id", partnerOrderID), zap.Error(err))
		return order, nil
	}

	next := mapUpstreamStatus(result.Status)
	if next == models.OrderProcessing {
		return order, nil
	}
	if err := s.transition(order, next); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

// Await polls a processing order until it reaches a terminal state or the
// budget runs out. Exhausting the budget fails the order: the upstream did
// not produce a terminal status within the window.
func (s *Service) Await(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	deadline := s.now().Add(pollBudget)
	for {
		order, err := s.Status(ctx, partnerOrderID)
		if err != nil {
			return nil, err
		}
		if order.State != models.OrderProcessing {
			return order, nil
		}
		if !s.now().Add(pollInterval).Before(deadline) {
			if terr := s.transition(order, models.OrderFailed); terr == nil {
				if uerr := s.repo.Update(ctx, *order); uerr != nil {
					s.logger.Warn("could not record poll budget failure",
						zap.String("partner_order_id", partnerOrderID), zap.Error(uerr))
				}
			}
			return order, fmt.Errorf("order %s did not settle within %s: %w",
				partnerOrderID, pollBudget, models.ErrTimeout)
		}
		if err := s.sleep(ctx, pollInterval); err != nil {
			return order, fmt.Errorf("await order %s: %w", partnerOrderID, models.ErrTimeout)
		}
	}
}

// Cancel cancels the order at the upstream and records the transition.
func (s *Service) Cancel(ctx context.Context, partnerOrderID string) (*models.Order, error) {
	order, err := s.repo.Get(ctx, partnerOrderID)
	if err != nil {
		return nil, err
	}
	if order.State == models.OrderCancelled {
		return order, nil
	}
	if !order.State.CanTransition(models.OrderCancelled) {
		return nil, fmt.Errorf("order %s in state %s cannot be cancelled: %w",
			partnerOrderID, order.State, models.ErrInvalidInput)
	}
	if order.OrderID == nil {
		return nil, fmt.Errorf("order %s has no upstream id: %w", partnerOrderID, models.ErrInternal)
	}

	if err := s.upstream.OrderCancel(ctx, *order.OrderID); err != nil {
		return nil, err
	}
	if err := s.transition(order, models.OrderCancelled); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

// OrderInfo returns the raw upstream order record for a known order.
func (s *Service) OrderInfo(ctx context.Context, partnerOrderID string) (json.RawMessage, error) {
	order, err := s.repo.Get(ctx, partnerOrderID)
	if err != nil {
		return nil, err
	}
	if order.OrderID == nil {
		return nil, fmt.Errorf("order %s has no upstream id yet: %w", partnerOrderID, models.ErrNotFound)
	}
	return s.upstream.OrderInfo(ctx, *order.OrderID)
}

// HandleWebhook ingests an upstream status push. Deliveries may identify the
// order by upstream order_id or by partner_order_id. Unknown orders and
// replays of an already-applied terminal status are ignored; a webhook never
// fails back to the upstream for state reasons.
func (s *Service) HandleWebhook(ctx context.Context, orderID int64, partnerOrderID, status string) error {
	var (
		order *models.Order
		err   error
	)
	switch {
	case orderID != 0:
		order, err = s.repo.GetByOrderID(ctx, orderID)
	case partnerOrderID != "":
		order, err = s.repo.Get(ctx, partnerOrderID)
	default:
		s.logger.Warn("webhook without an order identifier", zap.String("status", status))
		return nil
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("webhook for unknown order",
				zap.Int64("order_id", orderID),
				zap.String("partner_order_id", partnerOrderID),
				zap.String("status", status))
			return nil
		}
		return err
	}

	next := mapUpstreamStatus(status)
	if next == models.OrderProcessing || order.State == next {
		return nil
	}
	if !order.State.CanTransition(next) {
		s.logger.Warn("webhook transition ignored",
			zap.String("partner_order_id", order.PartnerOrderID),
			zap.String("from", string(order.State)), zap.String("to", string(next)))
		return nil
	}
	if err := s.transition(order, next); err != nil {
		return err
	}
	return s.repo.Update(ctx, *order)
}
