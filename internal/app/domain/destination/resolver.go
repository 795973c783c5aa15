// Package destination resolves free-form destination input to an upstream
// region id. Lookup runs in tiers: raw integer, compiled-in static map,
// persistent destination cache, bulk-imported region catalogue, then the
// upstream region search. Catalogue and upstream hits write through into
// the cache.
package destination

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/stayflow/gateway/internal/app/models"
)

// Cache is the slice of the cache store the resolver needs.
type Cache interface {
	GetDestination(ctx context.Context, normalized string) (*models.DestinationCacheEntry, error)
	PutDestination(ctx context.Context, entry models.DestinationCacheEntry) error
	TouchDestination(ctx context.Context, normalized string) error
}

// RegionLookup is the slice of the upstream client the resolver needs.
type RegionLookup interface {
	RegionLookup(ctx context.Context, query string) ([]models.Region, error)
}

// Regions is the slice of the local region catalogue the resolver needs.
type Regions interface {
	LookupRegionByName(ctx context.Context, query string) (*models.Region, error)
}

type Resolver struct {
	cache     Cache
	catalogue Regions
	upstream  RegionLookup
	group     singleflight.Group
	logger    *zap.Logger
}

func NewResolver(cache Cache, catalogue Regions, upstream RegionLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: cache, catalogue: catalogue, upstream: upstream, logger: logger}
}

var titleCaser = cases.Title(language.English)

// Normalize lowercases, strips punctuation, collapses whitespace and drops a
// comma suffix ("Los Angeles, California" -> "los angeles").
func Normalize(input string) string {
	s := strings.TrimSpace(input)
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseSlug turns "united_states_of_america/los_angeles" into "Los Angeles".
func parseSlug(input string) string {
	parts := strings.Split(input, "/")
	last := parts[len(parts)-1]
	last = strings.ReplaceAll(last, "_", " ")
	return titleCaser.String(last)
}

// lookupStatic checks the compiled-in map: exact normalized match first,
// then containment in either direction. Containment is deterministic across
// map iteration order: the longest matching key wins, ties broken
// lexicographically.
func lookupStatic(normalized string) (staticRegion, bool) {
	if r, ok := staticRegions[normalized]; ok {
		return r, true
	}
	if len(normalized) < 3 {
		return staticRegion{}, false
	}
	var best string
	for key := range staticRegions {
		if !strings.Contains(key, normalized) && !strings.Contains(normalized, key) {
			continue
		}
		if best == "" || len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
		}
	}
	if best == "" {
		return staticRegion{}, false
	}
	return staticRegions[best], true
}

// Resolve maps a destination string, slug or raw region id to a region.
// It fails with a not-found kind only after every tier missed.
func (r *Resolver) Resolve(ctx context.Context, input string) (models.Resolution, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Resolution{}, fmt.Errorf("empty destination: %w", models.ErrInvalidInput)
	}

	// Tier 0: raw region id.
	if id, err := strconv.Atoi(input); err == nil {
		return models.Resolution{RegionID: id, RegionName: "Region " + input, Source: models.SourceNumeric}, nil
	}

	query := input
	if strings.Contains(input, "/") {
		query = parseSlug(input)
	}
	normalized := Normalize(query)
	if normalized == "" {
		return models.Resolution{}, fmt.Errorf("destination %q normalizes to nothing: %w", input, models.ErrInvalidInput)
	}

	// Tier 1: static map.
	if region, ok := lookupStatic(normalized); ok {
		return models.Resolution{RegionID: region.ID, RegionName: region.Name, Source: models.SourceStatic}, nil
	}

	// Tier 2: persistent destination cache.
	if entry, err := r.cache.GetDestination(ctx, normalized); err == nil {
		if terr := r.cache.TouchDestination(ctx, normalized); terr != nil {
			r.logger.Warn("destination cache touch failed", zap.String("destination", normalized), zap.Error(terr))
		}
		return models.Resolution{RegionID: entry.RegionID, RegionName: entry.RegionName, Source: models.SourceCache}, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		r.logger.Warn("destination cache read failed, falling through to upstream",
			zap.String("destination", normalized), zap.Error(err))
	}

	// Tier 3: bulk-imported region catalogue. A miss there is expected for
	// destinations outside the imported dump and falls through silently.
	if r.catalogue != nil {
		if region, err := r.catalogue.LookupRegionByName(ctx, normalized); err == nil {
			r.writeThrough(ctx, normalized, *region)
			return models.Resolution{RegionID: region.ID, RegionName: region.Name, Source: models.SourceCatalogue}, nil
		} else if !errors.Is(err, models.ErrNotFound) {
			r.logger.Warn("region catalogue lookup failed, falling through to upstream",
				zap.String("destination", normalized), zap.Error(err))
		}
	}

	// Tier 4: upstream region lookup, coalesced per normalized name.
	v, err, _ := r.group.Do(normalized, func() (any, error) {
		regions, err := r.upstream.RegionLookup(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(regions) == 0 {
			return nil, fmt.Errorf("destination %q: %w", input, models.ErrNotFound)
		}
		winner := regions[0]
		r.writeThrough(ctx, normalized, winner)
		return models.Resolution{RegionID: winner.ID, RegionName: winner.Name, Source: models.SourceUpstream}, nil
	})
	if err != nil {
		return models.Resolution{}, err
	}
	return v.(models.Resolution), nil
}

// writeThrough promotes a resolved region into the destination cache. A
// failed write never fails the resolution.
func (r *Resolver) writeThrough(ctx context.Context, normalized string, region models.Region) {
	if err := r.cache.PutDestination(ctx, models.DestinationCacheEntry{
		NormalizedName: normalized,
		RegionID:       region.ID,
		RegionName:     region.Name,
	}); err != nil {
		r.logger.Warn("destination cache write-through failed",
			zap.String("destination", normalized), zap.Error(err))
	}
}
