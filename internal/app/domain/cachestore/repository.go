// Package cachestore persists the gateway's TTL caches: destination,
// search, hotel-static, filter-values and autocomplete. TTL semantics live
// in application code: an expired row is deleted on read and reported as a
// miss. Filter-values and autocomplete rows additionally sit in an
// in-process hot layer because they are tiny and read constantly.
package cachestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/models"
)

// Table TTLs. Destination entries never expire; they are invalidated on
// upstream mismatch.
const (
	SearchTTL       = 30 * time.Minute
	HotelStaticTTL  = 7 * 24 * time.Hour
	FilterValuesTTL = 24 * time.Hour
	AutocompleteTTL = 24 * time.Hour
)

// DB is the pgx surface the store needs; satisfied by *pgxpool.Pool and by
// pgxmock in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store interface {
	GetDestination(ctx context.Context, normalized string) (*models.DestinationCacheEntry, error)
	PutDestination(ctx context.Context, entry models.DestinationCacheEntry) error
	TouchDestination(ctx context.Context, normalized string) error
	InvalidateDestination(ctx context.Context, normalized string) error

	GetSearch(ctx context.Context, signature string) (*models.SearchCacheEntry, error)
	PutSearch(ctx context.Context, entry models.SearchCacheEntry) error
	HitSearch(ctx context.Context, signature string) error

	GetHotelStatic(ctx context.Context, hotelID, language string) (*models.HotelStatic, error)
	PutHotelStatic(ctx context.Context, static models.HotelStatic) error

	GetFilterValues(ctx context.Context) (json.RawMessage, error)
	PutFilterValues(ctx context.Context, values json.RawMessage) error

	GetAutocomplete(ctx context.Context, query, locale string) (json.RawMessage, error)
	PutAutocomplete(ctx context.Context, query, locale string, results json.RawMessage) error

	Sweep(ctx context.Context) (int64, error)
}

type StoreImpl struct {
	db     DB
	hot    *gocache.Cache
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db DB, logger *zap.Logger) *StoreImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreImpl{
		db:     db,
		hot:    gocache.New(FilterValuesTTL, time.Hour),
		logger: logger,
		now:    time.Now,
	}
}

// AutocompleteKey derives the cache key for a query/locale pair.
func AutocompleteKey(query, locale string) string {
	sum := md5.Sum([]byte(query + "|" + locale))
	return hex.EncodeToString(sum[:])
}

// --- destination_cache (no TTL) ---

func (s *StoreImpl) GetDestination(ctx context.Context, normalized string) (*models.DestinationCacheEntry, error) {
	var e models.DestinationCacheEntry
	err := s.db.QueryRow(ctx, `
		SELECT normalized_name, region_id, region_name, last_verified_at, hit_count
		FROM destination_cache WHERE normalized_name = $1
	`, normalized).Scan(&e.NormalizedName, &e.RegionID, &e.RegionName, &e.LastVerifiedAt, &e.HitCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("destination %q: %w", normalized, models.ErrNotFound)
		}
		return nil, fmt.Errorf("destination cache read: %v: %w", err, models.ErrBackendUnavailable)
	}
	return &e, nil
}

func (s *StoreImpl) PutDestination(ctx context.Context, entry models.DestinationCacheEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO destination_cache (normalized_name, region_id, region_name, last_verified_at, hit_count)
		VALUES ($1, $2, $3, now(), 0)
		ON CONFLICT (normalized_name)
		DO UPDATE SET region_id = EXCLUDED.region_id, region_name = EXCLUDED.region_name, last_verified_at = now()
	`, entry.NormalizedName, entry.RegionID, entry.RegionName)
	if err != nil {
		return fmt.Errorf("destination cache write: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

func (s *StoreImpl) TouchDestination(ctx context.Context, normalized string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE destination_cache SET last_verified_at = now(), hit_count = hit_count + 1
		WHERE normalized_name = $1
	`, normalized)
	if err != nil {
		return fmt.Errorf("destination cache touch: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

func (s *StoreImpl) InvalidateDestination(ctx context.Context, normalized string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM destination_cache WHERE normalized_name = $1`, normalized)
	if err != nil {
		return fmt.Errorf("destination cache invalidate: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

// --- search_cache ---

func (s *StoreImpl) GetSearch(ctx context.Context, signature string) (*models.SearchCacheEntry, error) {
	var (
		e          models.SearchCacheEntry
		params     []byte
		hotelIDs   []byte
		ratesIndex []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT signature, params, region_id, total_hotels, hotel_ids, rates_index, cached_at, expires_at, hit_count
		FROM search_cache WHERE signature = $1
	`, signature).Scan(&e.Signature, &params, &e.RegionID, &e.TotalHotels, &hotelIDs, &ratesIndex, &e.CachedAt, &e.ExpiresAt, &e.HitCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("search %s: %w", signature, models.ErrNotFound)
		}
		return nil, fmt.Errorf("search cache read: %v: %w", err, models.ErrBackendUnavailable)
	}

	if s.now().After(e.ExpiresAt) {
		// Expired rows are deleted as a side effect of the read.
		if _, derr := s.db.Exec(ctx, `DELETE FROM search_cache WHERE signature = $1`, signature); derr != nil {
			s.logger.Warn("failed to delete expired search cache row", zap.String("signature", signature), zap.Error(derr))
		}
		return nil, fmt.Errorf("search %s expired: %w", signature, models.ErrNotFound)
	}

	if err := json.Unmarshal(params, &e.Params); err != nil {
		return nil, fmt.Errorf("decode cached search params: %w", models.ErrInternal)
	}
	if err := json.Unmarshal(hotelIDs, &e.HotelIDs); err != nil {
		return nil, fmt.Errorf("decode cached hotel ids: %w", models.ErrInternal)
	}
	if err := json.Unmarshal(ratesIndex, &e.RatesIndex); err != nil {
		return nil, fmt.Errorf("decode cached rates index: %w", models.ErrInternal)
	}
	return &e, nil
}

func (s *StoreImpl) PutSearch(ctx context.Context, entry models.SearchCacheEntry) error {
	params, err := json.Marshal(entry.Params)
	if err != nil {
		return fmt.Errorf("encode search params: %w", models.ErrInternal)
	}
	hotelIDs, err := json.Marshal(entry.HotelIDs)
	if err != nil {
		return fmt.Errorf("encode hotel ids: %w", models.ErrInternal)
	}
	ratesIndex, err := json.Marshal(entry.RatesIndex)
	if err != nil {
		return fmt.Errorf("encode rates index: %w", models.ErrInternal)
	}

	// Last write wins on concurrent miss-fills; the value is deterministic
	// given the signature.
	_, err = s.db.Exec(ctx, `
		INSERT INTO search_cache (signature, params, region_id, total_hotels, hotel_ids, rates_index, cached_at, expires_at, hit_count)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now() + make_interval(secs => $7), 0)
		ON CONFLICT (signature)
		DO UPDATE SET params = EXCLUDED.params, region_id = EXCLUDED.region_id,
			total_hotels = EXCLUDED.total_hotels, hotel_ids = EXCLUDED.hotel_ids,
			rates_index = EXCLUDED.rates_index, cached_at = now(),
			expires_at = now() + make_interval(secs => $7), hit_count = 0
	`, entry.Signature, params, entry.RegionID, entry.TotalHotels, hotelIDs, ratesIndex, SearchTTL.Seconds())
	if err != nil {
		return fmt.Errorf("search cache write: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

func (s *StoreImpl) HitSearch(ctx context.Context, signature string) error {
	_, err := s.db.Exec(ctx, `UPDATE search_cache SET hit_count = hit_count + 1 WHERE signature = $1`, signature)
	if err != nil {
		return fmt.Errorf("search cache hit: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

// --- hotel_static_cache ---

func (s *StoreImpl) GetHotelStatic(ctx context.Context, hotelID, language string) (*models.HotelStatic, error) {
	var (
		h           models.HotelStatic
		images      []byte
		amenities   []byte
		coordinates []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT hotel_id, language, name, address, city, country, star_rating,
			images, amenities, description, coordinates, raw_data, cached_at, expires_at
		FROM hotel_static_cache WHERE hotel_id = $1 AND language = $2
	`, hotelID, language).Scan(&h.HotelID, &h.Language, &h.Name, &h.Address, &h.City, &h.Country,
		&h.StarRating, &images, &amenities, &h.Description, &coordinates, &h.RawData, &h.CachedAt, &h.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("hotel static %s/%s: %w", hotelID, language, models.ErrNotFound)
		}
		return nil, fmt.Errorf("hotel static cache read: %v: %w", err, models.ErrBackendUnavailable)
	}

	if s.now().After(h.ExpiresAt) {
		if _, derr := s.db.Exec(ctx, `DELETE FROM hotel_static_cache WHERE hotel_id = $1 AND language = $2`, hotelID, language); derr != nil {
			s.logger.Warn("failed to delete expired hotel static row", zap.String("hotel_id", hotelID), zap.Error(derr))
		}
		return nil, fmt.Errorf("hotel static %s/%s expired: %w", hotelID, language, models.ErrNotFound)
	}

	_ = json.Unmarshal(images, &h.Images)
	_ = json.Unmarshal(amenities, &h.Amenities)
	var coords struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(coordinates, &coords); err == nil {
		h.Latitude = coords.Latitude
		h.Longitude = coords.Longitude
	}
	return &h, nil
}

func (s *StoreImpl) PutHotelStatic(ctx context.Context, static models.HotelStatic) error {
	images, _ := json.Marshal(static.Images)
	amenities, _ := json.Marshal(static.Amenities)
	coordinates, _ := json.Marshal(map[string]float64{
		"latitude":  static.Latitude,
		"longitude": static.Longitude,
	})

	_, err := s.db.Exec(ctx, `
		INSERT INTO hotel_static_cache (hotel_id, language, name, address, city, country, star_rating,
			images, amenities, description, coordinates, raw_data, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now() + make_interval(secs => $13))
		ON CONFLICT (hotel_id, language)
		DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, city = EXCLUDED.city,
			country = EXCLUDED.country, star_rating = EXCLUDED.star_rating, images = EXCLUDED.images,
			amenities = EXCLUDED.amenities, description = EXCLUDED.description,
			coordinates = EXCLUDED.coordinates, raw_data = EXCLUDED.raw_data,
			cached_at = now(), expires_at = now() + make_interval(secs => $13)
	`, static.HotelID, static.Language, static.Name, static.Address, static.City, static.Country,
		static.StarRating, images, amenities, static.Description, coordinates, static.RawData,
		HotelStaticTTL.Seconds())
	if err != nil {
		return fmt.Errorf("hotel static cache write: %v: %w", err, models.ErrBackendUnavailable)
	}
	return nil
}

// --- filter_values_cache (singleton row) ---

const filterValuesHotKey = "filter_values"

func (s *StoreImpl) GetFilterValues(ctx context.Context) (json.RawMessage, error) {
	if v, ok := s.hot.Get(filterValuesHotKey); ok {
		return v.(json.RawMessage), nil
	}

	var (
		values    []byte
		expiresAt time.Time
	)
	err := s.db.QueryRow(ctx, `SELECT filter_values, expires_at FROM filter_values_cache WHERE id = 1`).
		Scan(&values, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("filter values: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("filter values cache read: %v: %w", err, models.ErrBackendUnavailable)
	}
	if s.now().After(expiresAt) {
		if _, derr := s.db.Exec(ctx, `DELETE FROM filter_values_cache WHERE id = 1`); derr != nil {
			s.logger.Warn("failed to delete expired filter values row", zap.Error(derr))
		}
		return nil, fmt.Errorf("filter values expired: %w", models.ErrNotFound)
	}

	raw := json.RawMessage(values)
	s.hot.Set(filterValuesHotKey, raw, time.Until(expiresAt))
	return raw, nil
}

func (s *StoreImpl) PutFilterValues(ctx context.Context, values json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO filter_values_cache (id, filter_values, cached_at, expires_at)
		VALUES (1, $1, now(), now() + make_interval(secs => $2))
		ON CONFLICT (id)
		DO UPDATE SET filter_values = EXCLUDED.filter_values, cached_at = now(), expires_at = now() + make_interval(secs => $2)
	`, []byte(values), FilterValuesTTL.Seconds())
	if err != nil {
		return fmt.Errorf("filter values cache write: %v: %w", err, models.ErrBackendUnavailable)
	}
	s.hot.Set(filterValuesHotKey, values, FilterValuesTTL)
	return nil
}

// --- autocomplete_cache ---

func (s *StoreImpl) GetAutocomplete(ctx context.Context, query, locale string) (json.RawMessage, error) {
	key := AutocompleteKey(query, locale)
	if v, ok := s.hot.Get("ac:" + key); ok {
		return v.(json.RawMessage), nil
	}

	var (
		results   []byte
		expiresAt time.Time
	)
	err := s.db.QueryRow(ctx, `SELECT results, expires_at FROM autocomplete_cache WHERE query_key = $1`, key).
		Scan(&results, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("autocomplete %q: %w", query, models.ErrNotFound)
		}
		return nil, fmt.Errorf("autocomplete cache read: %v: %w", err, models.ErrBackendUnavailable)
	}
	if s.now().After(expiresAt) {
		if _, derr := s.db.Exec(ctx, `DELETE FROM autocomplete_cache WHERE query_key = $1`, key); derr != nil {
			s.logger.Warn("failed to delete expired autocomplete row", zap.Error(derr))
		}
		return nil, fmt.Errorf("autocomplete %q expired: %w", query, models.ErrNotFound)
	}

	raw := json.RawMessage(results)
	s.hot.Set("ac:"+key, raw, time.Until(expiresAt))
	return raw, nil
}

func (s *StoreImpl) PutAutocomplete(ctx context.Context, query, locale string, results json.RawMessage) error {
	key := AutocompleteKey(query, locale)
	_, err := s.db.Exec(ctx, `
		INSERT INTO autocomplete_cache (query_key, query, locale, results, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), now() + make_interval(secs => $5))
		ON CONFLICT (query_key)
		DO UPDATE SET results = EXCLUDED.results, cached_at = now(), expires_at = now() + make_interval(secs => $5)
	`, key, query, locale, []byte(results), AutocompleteTTL.Seconds())
	if err != nil {
		return fmt.Errorf("autocomplete cache write: %v: %w", err, models.ErrBackendUnavailable)
	}
	s.hot.Set("ac:"+key, results, AutocompleteTTL)
	return nil
}

// --- sweeper ---

// Sweep deletes expired rows from the TTL tables. Best-effort; readers also
// check expiry inline.
func (s *StoreImpl) Sweep(ctx context.Context) (int64, error) {
	var total int64
	for _, table := range []string{"search_cache", "hotel_static_cache", "filter_values_cache", "autocomplete_cache"} {
		tag, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE expires_at < now()`)
		if err != nil {
			return total, fmt.Errorf("sweep %s: %v: %w", table, err, models.ErrBackendUnavailable)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// StartSweeper deletes expired rows on a ticker until ctx is cancelled.
func (s *StoreImpl) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					s.logger.Warn("cache sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Debug("cache sweep removed expired rows", zap.Int64("rows", n))
				}
			}
		}
	}()
}
