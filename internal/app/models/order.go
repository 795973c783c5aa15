package models

import (
	"encoding/json"
	"time"
)

// OrderState is the booking state machine position of an order.
type OrderState string

const (
	OrderNew        OrderState = "new"
	OrderPriced     OrderState = "priced"
	OrderFormed     OrderState = "formed"
	OrderProcessing OrderState = "processing"
	OrderConfirmed  OrderState = "confirmed"
	OrderFailed     OrderState = "failed"
	OrderCancelled  OrderState = "cancelled"
)

// Terminal reports whether the state admits no further transitions other
// than cancellation of a confirmed order.
func (s OrderState) Terminal() bool {
	return s == OrderConfirmed || s == OrderFailed || s == OrderCancelled
}

// rank orders states along the forward path so transitions can be checked
// for monotonicity. Terminal states share the highest rank.
func (s OrderState) rank() int {
	switch s {
	case OrderNew:
		return 0
	case OrderPriced:
		return 1
	case OrderFormed:
		return 2
	case OrderProcessing:
		return 3
	case OrderConfirmed, OrderFailed, OrderCancelled:
		return 4
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next goes forward.
// Cancellation is legal from formed, processing and confirmed.
func (s OrderState) CanTransition(next OrderState) bool {
	if next == OrderCancelled {
		return s == OrderFormed || s == OrderProcessing || s == OrderConfirmed
	}
	if s.Terminal() {
		return false
	}
	return next.rank() == s.rank()+1 || (s == OrderProcessing && next.Terminal())
}

// BookingGuest is a single traveller on an order.
type BookingGuest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsChild   bool   `json:"is_child,omitempty"`
	Age       int    `json:"age,omitempty"`
}

// Order is a booking attempt. PartnerOrderID is minted locally once per
// attempt; OrderID and ItemID are assigned by the upstream at the form step.
type Order struct {
	PartnerOrderID   string          `json:"partner_order_id"`
	OrderID          *int64          `json:"order_id,omitempty"`
	ItemID           *int64          `json:"item_id,omitempty"`
	BookHash         string          `json:"book_hash"`
	BookingHash      string          `json:"booking_hash,omitempty"`
	State            OrderState      `json:"state"`
	PaymentType      string          `json:"payment_type,omitempty"`
	PaymentTypes     json.RawMessage `json:"payment_types,omitempty"`
	Guests           []BookingGuest  `json:"guests,omitempty"`
	PriceChanged     bool            `json:"price_changed,omitempty"`
	Residency        string          `json:"residency,omitempty"`
	Language         string          `json:"language,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	LastTransitionAt time.Time       `json:"last_transition_at"`
}
