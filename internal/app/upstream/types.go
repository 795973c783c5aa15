package upstream

import (
	"encoding/json"
	"strconv"

	"github.com/stayflow/gateway/internal/app/models"
)

// regionSearchRequest is the wire form of a region SERP search.
type regionSearchRequest struct {
	RegionID  int                 `json:"region_id"`
	Checkin   string              `json:"checkin"`
	Checkout  string              `json:"checkout"`
	Guests    []models.RoomGuests `json:"guests"`
	Currency  string              `json:"currency,omitempty"`
	Residency string              `json:"residency,omitempty"`
	Language  string              `json:"language,omitempty"`
}

type hotelsSearchRequest struct {
	IDs       []string            `json:"ids"`
	Checkin   string              `json:"checkin"`
	Checkout  string              `json:"checkout"`
	Guests    []models.RoomGuests `json:"guests"`
	Currency  string              `json:"currency,omitempty"`
	Residency string              `json:"residency,omitempty"`
	Language  string              `json:"language,omitempty"`
}

type hotelPageRequest struct {
	ID        string              `json:"id"`
	Checkin   string              `json:"checkin"`
	Checkout  string              `json:"checkout"`
	Guests    []models.RoomGuests `json:"guests"`
	Currency  string              `json:"currency,omitempty"`
	Residency string              `json:"residency,omitempty"`
	Language  string              `json:"language,omitempty"`
}

type hotelInfoRequest struct {
	ID       string `json:"id"`
	Language string `json:"language"`
}

type prebookRequest struct {
	BookHash  string `json:"book_hash"`
	Residency string `json:"residency,omitempty"`
	Language  string `json:"language,omitempty"`
}

type bookingFormRequest struct {
	BookHash       string `json:"book_hash"`
	PartnerOrderID string `json:"partner_order_id"`
	Language       string `json:"language,omitempty"`
}

type bookingFinishRequest struct {
	OrderID        int64                 `json:"order_id"`
	ItemID         int64                 `json:"item_id"`
	PartnerOrderID string                `json:"partner_order_id"`
	PaymentType    string                `json:"payment_type"`
	Guests         []models.BookingGuest `json:"guests"`
	Language       string                `json:"language,omitempty"`
}

type orderIDRequest struct {
	OrderID int64 `json:"order_id"`
}

type multicompleteRequest struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
}

// wireHotel is a hotel as it appears inside search responses: an identifier
// plus pass-through rate objects.
type wireHotel struct {
	ID    string            `json:"id"`
	HID   int64             `json:"hid,omitempty"`
	Rates []json.RawMessage `json:"rates"`
}

type searchData struct {
	Hotels []wireHotel `json:"hotels"`
	Total  int         `json:"total_hotels,omitempty"`
}

type hotelPageData struct {
	Hotels []wireHotel `json:"hotels"`
}

// SearchHotel is one live-rate hotel in upstream response order.
type SearchHotel struct {
	ID    string        `json:"id"`
	Rates []models.Rate `json:"rates"`
}

// PrebookResult is the outcome of holding a rate.
type PrebookResult struct {
	BookingHash  string `json:"booking_hash"`
	PriceChanged bool   `json:"price_changed"`
}

// BookingFormResult carries the upstream-assigned identifiers and the
// payment types available for the order.
type BookingFormResult struct {
	OrderID      int64           `json:"order_id"`
	ItemID       int64           `json:"item_id"`
	PaymentTypes json.RawMessage `json:"payment_types"`
}

// BookingStatusResult is one poll of the asynchronous booking pipeline.
type BookingStatusResult struct {
	OrderID        int64           `json:"order_id"`
	PartnerOrderID string          `json:"partner_order_id,omitempty"`
	Status         string          `json:"status"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// MulticompleteResult holds autocomplete candidates.
type MulticompleteResult struct {
	Regions []models.Region      `json:"regions"`
	Hotels  []MulticompleteHotel `json:"hotels"`
}

type MulticompleteHotel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RegionID int    `json:"region_id,omitempty"`
}

// ratePeek is the minimal view needed to hoist identifiers and the shown
// amount out of a pass-through rate payload.
type ratePeek struct {
	BookHash       string `json:"book_hash"`
	MatchHash      string `json:"match_hash"`
	PaymentOptions struct {
		PaymentTypes []struct {
			ShowAmount string `json:"show_amount"`
		} `json:"payment_types"`
	} `json:"payment_options"`
}

// hoistRate wraps a raw rate payload, extracting book_hash / match_hash and
// the displayed amount. The payload itself is never modified.
func hoistRate(raw json.RawMessage) models.Rate {
	rate := models.Rate{Payload: raw}
	var peek ratePeek
	if err := json.Unmarshal(raw, &peek); err != nil {
		return rate
	}
	rate.BookHash = peek.BookHash
	rate.MatchHash = peek.MatchHash
	if len(peek.PaymentOptions.PaymentTypes) > 0 {
		if amount, err := strconv.ParseFloat(peek.PaymentOptions.PaymentTypes[0].ShowAmount, 64); err == nil {
			rate.Amount = amount
		}
	}
	return rate
}

func hoistHotels(hotels []wireHotel) []SearchHotel {
	out := make([]SearchHotel, 0, len(hotels))
	for _, h := range hotels {
		sh := SearchHotel{ID: h.ID, Rates: make([]models.Rate, 0, len(h.Rates))}
		for _, raw := range h.Rates {
			sh.Rates = append(sh.Rates, hoistRate(raw))
		}
		out = append(out, sh)
	}
	return out
}
