// Package catalogue reads the bulk-imported hotel and region tables. The
// tables are written by the external dump ingester; the gateway only reads.
package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/stayflow/gateway/internal/app/models"
)

// DB is the pgx query surface the repository needs. *pgxpool.Pool satisfies
// it, and so does pgxmock in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	// LookupHotels returns every catalogue record whose id is in ids, in a
	// single query. Absent ids are simply missing from the map.
	LookupHotels(ctx context.Context, ids []string) (map[string]models.HotelStatic, error)
	// LookupRegionByName returns the best region whose name contains the
	// query (case-insensitive), preferring the shortest name.
	LookupRegionByName(ctx context.Context, query string) (*models.Region, error)
}

type RepositoryImpl struct {
	db DB
}

func NewRepository(db DB) Repository {
	return &RepositoryImpl{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (r *RepositoryImpl) LookupHotels(ctx context.Context, ids []string) (map[string]models.HotelStatic, error) {
	out := make(map[string]models.HotelStatic, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := psql.
		Select("hotel_id", "name", "address", "city", "country", "star_rating",
			"images", "amenities", "description", "coordinates", "kind",
			"check_in_time", "check_out_time", "amenity_groups", "room_groups", "raw_data").
		From("hotel_catalogue").
		Where(sq.Eq{"hotel_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build catalogue query: %w", models.ErrInternal)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalogue lookup: %v: %w", err, models.ErrBackendUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h           models.HotelStatic
			images      []byte
			amenities   []byte
			coordinates []byte
		)
		err := rows.Scan(&h.HotelID, &h.Name, &h.Address, &h.City, &h.Country, &h.StarRating,
			&images, &amenities, &h.Description, &coordinates, &h.Kind,
			&h.CheckInTime, &h.CheckOutTime, &h.AmenityGroups, &h.RoomGroups, &h.RawData)
		if err != nil {
			return nil, fmt.Errorf("scan catalogue row: %v: %w", err, models.ErrBackendUnavailable)
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
		out[h.HotelID] = h
	}
	return out, rows.Err()
}

func (r *RepositoryImpl) LookupRegionByName(ctx context.Context, query string) (*models.Region, error) {
	name := strings.TrimSpace(strings.ToLower(query))
	if name == "" {
		return nil, fmt.Errorf("empty region query: %w", models.ErrInvalidInput)
	}

	sqlQuery := `
		SELECT region_id, name, country_code
		FROM catalogue_regions
		WHERE lower(name) LIKE '%' || $1 || '%'
		ORDER BY length(name) ASC
		LIMIT 1
	`

	var region models.Region
	err := r.db.QueryRow(ctx, sqlQuery, name).Scan(&region.ID, &region.Name, &region.CountryCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("region %q: %w", query, models.ErrNotFound)
		}
		return nil, fmt.Errorf("region lookup: %v: %w", err, models.ErrBackendUnavailable)
	}
	return &region, nil
}
