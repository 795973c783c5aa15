package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stayflow/gateway/internal/app/models"
)

// API is the typed upstream surface consumed by the domain layers.
type API interface {
	RegionSearch(ctx context.Context, params models.SearchParams) ([]SearchHotel, int, error)
	HotelIDsSearch(ctx context.Context, ids []string, params models.SearchParams) ([]SearchHotel, error)
	HotelPage(ctx context.Context, hotelID string, params models.SearchParams) (*SearchHotel, error)
	HotelInfo(ctx context.Context, hotelID, language string) (*models.HotelStatic, error)
	Prebook(ctx context.Context, bookHash, residency, language string) (*PrebookResult, error)
	BookingForm(ctx context.Context, bookHash, partnerOrderID, language string) (*BookingFormResult, error)
	BookingFinish(ctx context.Context, orderID, itemID int64, partnerOrderID, paymentType string, guests []models.BookingGuest, language string) error
	BookingStatus(ctx context.Context, orderID int64) (*BookingStatusResult, error)
	OrderInfo(ctx context.Context, orderID int64) (json.RawMessage, error)
	OrderCancel(ctx context.Context, orderID int64) error
	Multicomplete(ctx context.Context, query, language string) (*MulticompleteResult, error)
	FilterValues(ctx context.Context) (json.RawMessage, error)
	RegionLookup(ctx context.Context, query string) ([]models.Region, error)
}

var _ API = (*Client)(nil)

// Hotel IDs searches accept at most this many explicit ids per call.
const maxHotelIDsPerSearch = 300

// RegionSearch returns hotels with live rates for a region, in upstream
// response order.
func (c *Client) RegionSearch(ctx context.Context, params models.SearchParams) ([]SearchHotel, int, error) {
	req := regionSearchRequest{
		RegionID:  params.RegionID,
		Checkin:   params.CheckIn,
		Checkout:  params.CheckOut,
		Guests:    params.Guests,
		Currency:  params.Currency,
		Residency: params.Residency,
		Language:  params.Language,
	}
	var data searchData
	if err := c.post(ctx, EndpointRegionSearch, searchTimeout, req, &data); err != nil {
		return nil, 0, err
	}
	total := data.Total
	if total == 0 {
		total = len(data.Hotels)
	}
	return hoistHotels(data.Hotels), total, nil
}

// HotelIDsSearch returns live rates for up to 300 explicit hotel ids.
func (c *Client) HotelIDsSearch(ctx context.Context, ids []string, params models.SearchParams) ([]SearchHotel, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("hotel ids search requires at least one id: %w", models.ErrInvalidInput)
	}
	if len(ids) > maxHotelIDsPerSearch {
		ids = ids[:maxHotelIDsPerSearch]
	}
	req := hotelsSearchRequest{
		IDs:       ids,
		Checkin:   params.CheckIn,
		Checkout:  params.CheckOut,
		Guests:    params.Guests,
		Currency:  params.Currency,
		Residency: params.Residency,
		Language:  params.Language,
	}
	var data searchData
	if err := c.post(ctx, EndpointHotelsSearch, searchTimeout, req, &data); err != nil {
		return nil, err
	}
	return hoistHotels(data.Hotels), nil
}

// HotelPage returns live rates for a single hotel.
func (c *Client) HotelPage(ctx context.Context, hotelID string, params models.SearchParams) (*SearchHotel, error) {
	req := hotelPageRequest{
		ID:        hotelID,
		Checkin:   params.CheckIn,
		Checkout:  params.CheckOut,
		Guests:    params.Guests,
		Currency:  params.Currency,
		Residency: params.Residency,
		Language:  params.Language,
	}
	var data hotelPageData
	if err := c.post(ctx, EndpointHotelPage, searchTimeout, req, &data); err != nil {
		return nil, err
	}
	if len(data.Hotels) == 0 {
		return nil, fmt.Errorf("hotel %s has no rates: %w", hotelID, models.ErrNotFound)
	}
	hotels := hoistHotels(data.Hotels)
	return &hotels[0], nil
}

type hotelInfoData struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Region struct {
		Name        string `json:"name"`
		CountryCode string `json:"country_code"`
	} `json:"region"`
	Address           string          `json:"address"`
	StarRating        int             `json:"star_rating"`
	Latitude          float64         `json:"latitude"`
	Longitude         float64         `json:"longitude"`
	Images            []string        `json:"images"`
	CheckInTime       string          `json:"check_in_time"`
	CheckOutTime      string          `json:"check_out_time"`
	AmenityGroups     json.RawMessage `json:"amenity_groups"`
	RoomGroups        json.RawMessage `json:"room_groups"`
	DescriptionStruct []struct {
		Title      string   `json:"title"`
		Paragraphs []string `json:"paragraphs"`
	} `json:"description_struct"`
}

type amenityGroup struct {
	GroupName string   `json:"group_name"`
	Amenities []string `json:"amenities"`
}

// HotelInfo fetches static attributes for one hotel in one language.
func (c *Client) HotelInfo(ctx context.Context, hotelID, language string) (*models.HotelStatic, error) {
	req := hotelInfoRequest{ID: hotelID, Language: language}

	var env json.RawMessage
	if err := c.post(ctx, EndpointHotelInfo, hotelInfoTimeout, req, &env); err != nil {
		return nil, err
	}
	var data hotelInfoData
	if err := json.Unmarshal(env, &data); err != nil {
		return nil, fmt.Errorf("parse hotel info: %w", models.ErrUpstream)
	}

	static := &models.HotelStatic{
		HotelID:       hotelID,
		Language:      language,
		Name:          data.Name,
		Address:       data.Address,
		City:          data.Region.Name,
		Country:       data.Region.CountryCode,
		StarRating:    data.StarRating,
		Latitude:      data.Latitude,
		Longitude:     data.Longitude,
		Images:        data.Images,
		Kind:          data.Kind,
		CheckInTime:   data.CheckInTime,
		CheckOutTime:  data.CheckOutTime,
		AmenityGroups: data.AmenityGroups,
		RoomGroups:    data.RoomGroups,
		RawData:       env,
	}

	var groups []amenityGroup
	if len(data.AmenityGroups) > 0 {
		if err := json.Unmarshal(data.AmenityGroups, &groups); err == nil {
			for _, g := range groups {
				static.Amenities = append(static.Amenities, g.Amenities...)
			}
		}
	}
	for _, d := range data.DescriptionStruct {
		for _, p := range d.Paragraphs {
			if static.Description != "" {
				static.Description += "\n"
			}
			static.Description += p
		}
	}
	return static, nil
}

// Prebook validates and holds a rate, returning the booking hash and
// whether the upstream reported a price change.
func (c *Client) Prebook(ctx context.Context, bookHash, residency, language string) (*PrebookResult, error) {
	req := prebookRequest{BookHash: bookHash, Residency: residency, Language: language}
	var out PrebookResult
	if err := c.post(ctx, EndpointPrebook, prebookTimeout, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BookingForm opens the order at the upstream and returns its identifiers.
func (c *Client) BookingForm(ctx context.Context, bookHash, partnerOrderID, language string) (*BookingFormResult, error) {
	req := bookingFormRequest{BookHash: bookHash, PartnerOrderID: partnerOrderID, Language: language}
	var out BookingFormResult
	if err := c.post(ctx, EndpointBookingForm, bookingTimeout, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BookingFinish starts the asynchronous booking. The call goes out at most
// once: the order already exists at the upstream, so after any failure
// progress is observed through BookingStatus, never by re-issuing finish.
func (c *Client) BookingFinish(ctx context.Context, orderID, itemID int64, partnerOrderID, paymentType string, guests []models.BookingGuest, language string) error {
	if len(guests) == 0 {
		return fmt.Errorf("booking finish requires at least one guest: %w", models.ErrInvalidInput)
	}
	req := bookingFinishRequest{
		OrderID:        orderID,
		ItemID:         itemID,
		PartnerOrderID: partnerOrderID,
		PaymentType:    paymentType,
		Guests:         guests,
		Language:       language,
	}
	return c.postOnce(ctx, EndpointBookingFinish, bookingTimeout, req, nil)
}

// BookingStatus polls the asynchronous booking pipeline once.
func (c *Client) BookingStatus(ctx context.Context, orderID int64) (*BookingStatusResult, error) {
	var out BookingStatusResult
	if err := c.post(ctx, EndpointBookingStatus, bookingTimeout, orderIDRequest{OrderID: orderID}, &out); err != nil {
		return nil, err
	}
	if out.OrderID == 0 {
		out.OrderID = orderID
	}
	return &out, nil
}

// OrderInfo returns the raw upstream order record.
func (c *Client) OrderInfo(ctx context.Context, orderID int64) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, EndpointOrderInfo, bookingTimeout, orderIDRequest{OrderID: orderID}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderCancel cancels the order at the upstream. Penalty rules are the
// upstream's business; the gateway does not interpret them.
func (c *Client) OrderCancel(ctx context.Context, orderID int64) error {
	return c.post(ctx, EndpointOrderCancel, bookingTimeout, orderIDRequest{OrderID: orderID}, nil)
}

// Multicomplete returns autocomplete candidates for a free-form query.
func (c *Client) Multicomplete(ctx context.Context, query, language string) (*MulticompleteResult, error) {
	req := multicompleteRequest{Query: query, Language: language}
	var out MulticompleteResult
	if err := c.post(ctx, EndpointMulticomplete, defaultTimeout, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FilterValues enumerates the upstream's filter metadata.
func (c *Client) FilterValues(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.post(ctx, EndpointFilterValues, defaultTimeout, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegionLookup resolves a destination query to upstream region candidates.
// It rides the multicomplete endpoint and keeps only region results.
func (c *Client) RegionLookup(ctx context.Context, query string) ([]models.Region, error) {
	res, err := c.Multicomplete(ctx, query, "en")
	if err != nil {
		return nil, err
	}
	return res.Regions, nil
}
