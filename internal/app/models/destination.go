package models

import "time"

// Resolution sources, ordered by tier.
const (
	SourceNumeric   = "numeric"
	SourceStatic    = "static"
	SourceCache     = "cache"
	SourceCatalogue = "catalogue"
	SourceUpstream  = "upstream"
)

// Resolution is the outcome of resolving a free-form destination.
type Resolution struct {
	RegionID   int    `json:"region_id"`
	RegionName string `json:"region_name"`
	Source     string `json:"source"`
}

// DestinationCacheEntry mirrors the destination_cache row. Entries never
// expire by TTL; they are invalidated explicitly on upstream mismatch.
type DestinationCacheEntry struct {
	NormalizedName string    `json:"normalized_name"`
	RegionID       int       `json:"region_id"`
	RegionName     string    `json:"region_name"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
	HitCount       int       `json:"hit_count"`
}
