// Package filters serves the upstream's filter metadata and destination
// autocomplete, both behind long-lived caches.
package filters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/upstream"
)

// Upstream is the slice of the upstream API this layer uses.
type Upstream interface {
	FilterValues(ctx context.Context) (json.RawMessage, error)
	Multicomplete(ctx context.Context, query, language string) (*upstream.MulticompleteResult, error)
}

// Cache is the slice of the cache store this layer uses.
type Cache interface {
	GetFilterValues(ctx context.Context) (json.RawMessage, error)
	PutFilterValues(ctx context.Context, values json.RawMessage) error
	GetAutocomplete(ctx context.Context, query, locale string) (json.RawMessage, error)
	PutAutocomplete(ctx context.Context, query, locale string, results json.RawMessage) error
}

type Service struct {
	upstream Upstream
	cache    Cache
	group    singleflight.Group
	logger   *zap.Logger
}

func NewService(up Upstream, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{upstream: up, cache: cache, logger: logger}
}

// FilterValues returns the filter metadata, refreshing from the upstream on
// a cache miss. Refreshes coalesce: one upstream call regardless of fan-in.
func (s *Service) FilterValues(ctx context.Context) (json.RawMessage, error) {
	if values, err := s.cache.GetFilterValues(ctx); err == nil {
		return values, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("filter values cache read failed", zap.Error(err))
	}

	v, err, _ := s.group.Do("filter_values", func() (any, error) {
		values, err := s.upstream.FilterValues(ctx)
		if err != nil {
			return nil, err
		}
		if perr := s.cache.PutFilterValues(ctx, values); perr != nil {
			s.logger.Warn("filter values cache write failed", zap.Error(perr))
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Autocomplete returns region and hotel candidates for a partial query.
// Queries shorter than two characters are rejected rather than fanned out.
func (s *Service) Autocomplete(ctx context.Context, query, locale string) (json.RawMessage, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, fmt.Errorf("autocomplete query too short: %w", models.ErrInvalidInput)
	}
	if locale == "" {
		locale = "en"
	}

	if cached, err := s.cache.GetAutocomplete(ctx, query, locale); err == nil {
		return cached, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("autocomplete cache read failed", zap.String("query", query), zap.Error(err))
	}

	key := query + "|" + locale
	v, err, _ := s.group.Do(key, func() (any, error) {
		result, err := s.upstream.Multicomplete(ctx, query, locale)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode autocomplete result: %w", models.ErrInternal)
		}
		if perr := s.cache.PutAutocomplete(ctx, query, locale, encoded); perr != nil {
			s.logger.Warn("autocomplete cache write failed", zap.String("query", query), zap.Error(perr))
		}
		return json.RawMessage(encoded), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}
