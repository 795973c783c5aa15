package models

import (
	"encoding/json"
	"time"
)

// RoomGuests is one requested room: adult count plus the ordered list of
// child ages. Order of children is preserved because it is part of the
// canonical form used for search signatures.
type RoomGuests struct {
	Adults   int   `json:"adults"`
	Children []int `json:"children"`
}

// SearchParams is the canonical, fully typed form of a search request.
// Residency is carried for the upstream call but is not part of the
// search signature.
type SearchParams struct {
	RegionID  int          `json:"region_id"`
	CheckIn   string       `json:"checkin"`
	CheckOut  string       `json:"checkout"`
	Guests    []RoomGuests `json:"guests"`
	Currency  string       `json:"currency"`
	Residency string       `json:"residency"`
	Language  string       `json:"language,omitempty"`
}

// Rate is a live rate as returned by the upstream. The payload is passed
// through untouched; only book_hash / match_hash (and the displayed amount,
// for min/max bucketing) are hoisted out of it.
type Rate struct {
	BookHash  string          `json:"book_hash,omitempty"`
	MatchHash string          `json:"match_hash,omitempty"`
	Amount    float64         `json:"amount,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// HotelRates groups everything cached per hotel inside a search entry.
type HotelRates struct {
	MinRate float64      `json:"min_rate"`
	MaxRate float64      `json:"max_rate"`
	Rates   []Rate       `json:"rates"`
	Static  *HotelStatic `json:"static,omitempty"`
}

// SearchResult is what the orchestrator hands to the handler layer.
// HotelIDs preserves the upstream response order.
type SearchResult struct {
	Params      SearchParams          `json:"params"`
	Signature   string                `json:"signature"`
	HotelIDs    []string              `json:"hotel_ids"`
	Hotels      map[string]HotelRates `json:"hotels"`
	TotalHotels int                   `json:"total_hotels"`
	FromCache   bool                  `json:"from_cache"`
	CacheAge    time.Duration         `json:"cache_age,omitempty"`
}

// SearchCacheEntry mirrors the search_cache row.
type SearchCacheEntry struct {
	Signature   string                `json:"signature"`
	Params      SearchParams          `json:"params"`
	RegionID    int                   `json:"region_id"`
	TotalHotels int                   `json:"total_hotels"`
	HotelIDs    []string              `json:"hotel_ids"`
	RatesIndex  map[string]HotelRates `json:"rates_index"`
	CachedAt    time.Time             `json:"cached_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
	HitCount    int                   `json:"hit_count"`
}
