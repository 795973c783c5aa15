package models

import (
	"encoding/json"
	"time"
)

// HotelStatic holds the canonical static attributes of a hotel, whether they
// came from the bulk catalogue or from a live hotel_info call. RawData keeps
// the unparsed upstream payload for later extraction.
type HotelStatic struct {
	HotelID       string          `json:"hotel_id"`
	Language      string          `json:"language"`
	Name          string          `json:"name"`
	Address       string          `json:"address"`
	City          string          `json:"city"`
	Country       string          `json:"country"`
	StarRating    int             `json:"star_rating"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	Images        []string        `json:"images"`
	Amenities     []string        `json:"amenities"`
	Description   string          `json:"description"`
	Kind          string          `json:"kind,omitempty"`
	CheckInTime   string          `json:"check_in_time,omitempty"`
	CheckOutTime  string          `json:"check_out_time,omitempty"`
	AmenityGroups json.RawMessage `json:"amenity_groups,omitempty"`
	RoomGroups    json.RawMessage `json:"room_groups,omitempty"`
	RawData       json.RawMessage `json:"raw_data,omitempty"`
	CachedAt      time.Time       `json:"cached_at,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at,omitempty"`
}

// Region is an upstream search geography.
type Region struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code,omitempty"`
}
