// Package search orchestrates region searches: destination resolution,
// signature-keyed caching, upstream fan-out and static enrichment from the
// local catalogue.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/upstream"
)

// DefaultPageSize is applied when a pagination request does not set one.
const DefaultPageSize = 20

// Upstream is the slice of the upstream API the search layer uses.
type Upstream interface {
	RegionSearch(ctx context.Context, params models.SearchParams) ([]upstream.SearchHotel, int, error)
	HotelPage(ctx context.Context, hotelID string, params models.SearchParams) (*upstream.SearchHotel, error)
	HotelInfo(ctx context.Context, hotelID, language string) (*models.HotelStatic, error)
}

// Cache is the slice of the cache store the search layer uses.
type Cache interface {
	GetSearch(ctx context.Context, signature string) (*models.SearchCacheEntry, error)
	PutSearch(ctx context.Context, entry models.SearchCacheEntry) error
	HitSearch(ctx context.Context, signature string) error
	GetHotelStatic(ctx context.Context, hotelID, language string) (*models.HotelStatic, error)
	PutHotelStatic(ctx context.Context, static models.HotelStatic) error
}

// Catalogue is the bulk static lookup used for enrichment.
type Catalogue interface {
	LookupHotels(ctx context.Context, ids []string) (map[string]models.HotelStatic, error)
}

// Resolver maps free-form destination input to a region.
type Resolver interface {
	Resolve(ctx context.Context, input string) (models.Resolution, error)
}

// HotelDetails is the hotel-page response: live rates plus static attributes.
// Rates may be empty when the hotel has no availability for the stay.
type HotelDetails struct {
	HotelID string              `json:"hotel_id"`
	Rates   []models.Rate       `json:"rates"`
	Static  *models.HotelStatic `json:"static,omitempty"`
}

type Service struct {
	resolver  Resolver
	upstream  Upstream
	cache     Cache
	catalogue Catalogue
	group     singleflight.Group
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(resolver Resolver, up Upstream, cache Cache, catalogue Catalogue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		resolver:  resolver,
		upstream:  up,
		cache:     cache,
		catalogue: catalogue,
		logger:    logger,
		now:       time.Now,
	}
}

func validateParams(p models.SearchParams) error {
	checkin, err := time.Parse("2006-01-02", p.CheckIn)
	if err != nil {
		return fmt.Errorf("checkin %q is not YYYY-MM-DD: %w", p.CheckIn, models.ErrInvalidInput)
	}
	checkout, err := time.Parse("2006-01-02", p.CheckOut)
	if err != nil {
		return fmt.Errorf("checkout %q is not YYYY-MM-DD: %w", p.CheckOut, models.ErrInvalidInput)
	}
	if p.CheckIn < time.Now().UTC().Format("2006-01-02") {
		return fmt.Errorf("checkin %s is in the past: %w", p.CheckIn, models.ErrInvalidInput)
	}
	if !checkout.After(checkin) {
		return fmt.Errorf("checkout must be after checkin: %w", models.ErrInvalidInput)
	}
	if len(p.Guests) == 0 {
		return fmt.Errorf("at least one room is required: %w", models.ErrInvalidInput)
	}
	for _, room := range p.Guests {
		if room.Adults < 1 {
			return fmt.Errorf("each room needs at least one adult: %w", models.ErrInvalidInput)
		}
		for _, age := range room.Children {
			if age < 0 || age > 17 {
				return fmt.Errorf("child age %d out of range: %w", age, models.ErrInvalidInput)
			}
		}
	}
	return nil
}

// Search resolves the destination, consults the signature-keyed cache and
// falls through to the upstream on a miss. Concurrent misses for the same
// signature are coalesced; only one upstream call is in flight per key.
func (s *Service) Search(ctx context.Context, destination string, params models.SearchParams) (*models.SearchResult, error) {
	resolution, err := s.resolver.Resolve(ctx, destination)
	if err != nil {
		return nil, err
	}
	params.RegionID = resolution.RegionID

	if err := validateParams(params); err != nil {
		return nil, err
	}
	canonical := Canonicalize(params)
	signature := Signature(canonical)

	if entry, err := s.cache.GetSearch(ctx, signature); err == nil {
		if herr := s.cache.HitSearch(ctx, signature); herr != nil {
			s.logger.Warn("search cache hit count update failed", zap.String("signature", signature), zap.Error(herr))
		}
		return s.resultFromEntry(entry, canonical), nil
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("search cache read failed, falling through to upstream",
			zap.String("signature", signature), zap.Error(err))
	}

	v, err, _ := s.group.Do(signature, func() (any, error) {
		return s.fill(ctx, signature, canonical)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SearchResult), nil
}

func (s *Service) fill(ctx context.Context, signature string, params models.SearchParams) (*models.SearchResult, error) {
	hotels, total, err := s.upstream.RegionSearch(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hotels))
	index := make(map[string]models.HotelRates, len(hotels))
	for _, h := range hotels {
		ids = append(ids, h.ID)
		index[h.ID] = bucketRates(h.Rates)
	}

	// Enrichment is best-effort: a catalogue outage degrades the response to
	// rates-only, it never fails the search.
	static, err := s.catalogue.LookupHotels(ctx, ids)
	if err != nil {
		s.logger.Warn("catalogue enrichment failed, returning rates only", zap.Error(err))
	} else {
		for id, h := range static {
			entry := index[id]
			hotel := h
			entry.Static = &hotel
			index[id] = entry
		}
	}

	entry := models.SearchCacheEntry{
		Signature:   signature,
		Params:      params,
		RegionID:    params.RegionID,
		TotalHotels: total,
		HotelIDs:    ids,
		RatesIndex:  index,
		CachedAt:    s.now(),
	}
	if perr := s.cache.PutSearch(ctx, entry); perr != nil {
		s.logger.Warn("search cache write failed", zap.String("signature", signature), zap.Error(perr))
	}

	return &models.SearchResult{
		Params:      params,
		Signature:   signature,
		HotelIDs:    ids,
		Hotels:      index,
		TotalHotels: total,
	}, nil
}

func bucketRates(rates []models.Rate) models.HotelRates {
	hr := models.HotelRates{Rates: rates}
	for _, r := range rates {
		if r.Amount == 0 {
			continue
		}
		if hr.MinRate == 0 || r.Amount < hr.MinRate {
			hr.MinRate = r.Amount
		}
		if r.Amount > hr.MaxRate {
			hr.MaxRate = r.Amount
		}
	}
	return hr
}

func (s *Service) resultFromEntry(entry *models.SearchCacheEntry, params models.SearchParams) *models.SearchResult {
	return &models.SearchResult{
		Params:      params,
		Signature:   entry.Signature,
		HotelIDs:    entry.HotelIDs,
		Hotels:      entry.RatesIndex,
		TotalHotels: entry.TotalHotels,
		FromCache:   true,
		CacheAge:    s.now().Sub(entry.CachedAt),
	}
}

// Paginate serves one page of a previously cached search, preserving the
// stored hotel order. An expired or unknown signature is a not-found; the
// caller re-issues the search.
func (s *Service) Paginate(ctx context.Context, signature string, page, pageSize int) (*models.SearchResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	entry, err := s.cache.GetSearch(ctx, signature)
	if err != nil {
		return nil, err
	}

	start := (page - 1) * pageSize
	if start >= len(entry.HotelIDs) {
		return nil, fmt.Errorf("page %d is past the end of %d hotels: %w", page, len(entry.HotelIDs), models.ErrNotFound)
	}
	end := start + pageSize
	if end > len(entry.HotelIDs) {
		end = len(entry.HotelIDs)
	}

	ids := entry.HotelIDs[start:end]
	hotels := make(map[string]models.HotelRates, len(ids))
	for _, id := range ids {
		if hr, ok := entry.RatesIndex[id]; ok {
			hotels[id] = hr
		}
	}

	return &models.SearchResult{
		Params:      entry.Params,
		Signature:   entry.Signature,
		HotelIDs:    ids,
		Hotels:      hotels,
		TotalHotels: entry.TotalHotels,
		FromCache:   true,
		CacheAge:    s.now().Sub(entry.CachedAt),
	}, nil
}

// HotelDetails fetches the hotel page: live rates for the stay plus static
// attributes. A hotel with no availability still returns its static data.
func (s *Service) HotelDetails(ctx context.Context, hotelID string, params models.SearchParams) (*HotelDetails, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	canonical := Canonicalize(params)

	details := &HotelDetails{HotelID: hotelID}

	hotel, err := s.upstream.HotelPage(ctx, hotelID, canonical)
	switch {
	case err == nil:
		details.Rates = hotel.Rates
	case errors.Is(err, models.ErrNotFound):
		// No rates for the stay; fall through to static-only.
	default:
		return nil, err
	}

	static, serr := s.StaticInfo(ctx, hotelID, canonical.Language)
	if serr != nil {
		if len(details.Rates) == 0 {
			return nil, serr
		}
		s.logger.Warn("static lookup failed for hotel page", zap.String("hotel_id", hotelID), zap.Error(serr))
	} else {
		details.Static = static
	}
	return details, nil
}

// StaticInfo returns a hotel's static attributes, trying the local catalogue,
// then the static cache, then the upstream with write-through.
func (s *Service) StaticInfo(ctx context.Context, hotelID, language string) (*models.HotelStatic, error) {
	if language == "" {
		language = "en"
	}

	if fromCatalogue, err := s.catalogue.LookupHotels(ctx, []string{hotelID}); err == nil {
		if h, ok := fromCatalogue[hotelID]; ok {
			return &h, nil
		}
	} else {
		s.logger.Warn("catalogue lookup failed", zap.String("hotel_id", hotelID), zap.Error(err))
	}

	if cached, err := s.cache.GetHotelStatic(ctx, hotelID, language); err == nil {
		return cached, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("hotel static cache read failed", zap.String("hotel_id", hotelID), zap.Error(err))
	}

	static, err := s.upstream.HotelInfo(ctx, hotelID, language)
	if err != nil {
		return nil, err
	}
	if perr := s.cache.PutHotelStatic(ctx, *static); perr != nil {
		s.logger.Warn("hotel static cache write failed", zap.String("hotel_id", hotelID), zap.Error(perr))
	}
	return static, nil
}
