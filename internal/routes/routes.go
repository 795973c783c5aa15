// Package routes wires repositories, services and handlers onto the gin
// engine.
package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/domain/booking"
	"github.com/stayflow/gateway/internal/app/domain/cachestore"
	"github.com/stayflow/gateway/internal/app/domain/catalogue"
	"github.com/stayflow/gateway/internal/app/domain/destination"
	"github.com/stayflow/gateway/internal/app/domain/filters"
	"github.com/stayflow/gateway/internal/app/domain/search"
	"github.com/stayflow/gateway/internal/app/handlers"
	"github.com/stayflow/gateway/internal/app/observability/metrics"
	"github.com/stayflow/gateway/internal/app/upstream"
	"github.com/stayflow/gateway/internal/pkg/config"
	"github.com/stayflow/gateway/internal/pkg/ratelimit"
)

// AppHandlers aggregates every handler group mounted on the router.
type AppHandlers struct {
	Search  *handlers.SearchHandlers
	Booking *handlers.BookingHandlers
	Filter  *handlers.FilterHandlers
	Health  *handlers.HealthHandlers

	// Store and Governor are exposed so the server can start their
	// background sweepers.
	Store    *cachestore.StoreImpl
	Governor *ratelimit.Governor
}

// Setup builds the dependency graph and mounts all routes.
func Setup(r *gin.Engine, dbPool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) *AppHandlers {
	h := setupDependencies(dbPool, cfg, log)
	setupRouter(r, h, log)
	return h
}

// meteredGovernor records admission waits before handing the call to the
// governor's caller.
type meteredGovernor struct {
	g *ratelimit.Governor
}

func (m meteredGovernor) Admit(ctx context.Context, endpoint string) error {
	start := time.Now()
	err := m.g.Admit(ctx, endpoint)
	metrics.Get().GovernorWaitSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("endpoint", endpoint)))
	return err
}

func setupDependencies(dbPool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) *AppHandlers {
	governor := ratelimit.NewGovernor(ratelimit.DefaultQuotas, log)
	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.ContentBaseURL,
		cfg.Upstream.PartnerID, cfg.Upstream.APIKey, meteredGovernor{governor}, log)

	store := cachestore.NewStore(dbPool, log)
	catalogueRepo := catalogue.NewRepository(dbPool)
	orderRepo := booking.NewRepository(dbPool)

	resolver := destination.NewResolver(store, catalogueRepo, client, log)
	searchSvc := search.NewService(resolver, client, store, catalogueRepo, log)
	bookingSvc := booking.NewService(orderRepo, client, log)
	filterSvc := filters.NewService(client, store, log)

	return &AppHandlers{
		Search:   handlers.NewSearchHandlers(searchSvc, log),
		Booking:  handlers.NewBookingHandlers(bookingSvc, log),
		Filter:   handlers.NewFilterHandlers(filterSvc, log),
		Health:   handlers.NewHealthHandlers(dbPool, governor),
		Store:    store,
		Governor: governor,
	}
}

func setupRouter(r *gin.Engine, h *AppHandlers, log *zap.Logger) {
	r.GET("/healthz", h.Health.Healthz)

	r.POST("/search", h.Search.Search)
	r.GET("/search", h.Search.SearchPage)

	r.POST("/hotel/details", h.Search.HotelDetails)
	r.POST("/hotel/static-info", h.Search.HotelStatic)
	r.GET("/hotel/static-info/:hid", h.Search.HotelStaticByID)

	r.GET("/filter-values", h.Filter.FilterValues)
	r.GET("/autocomplete", h.Filter.Autocomplete)

	r.POST("/prebook", h.Booking.Prebook)
	r.POST("/order/form", h.Booking.Form)
	r.POST("/order/finish", h.Booking.Finish)
	r.POST("/order/status", h.Booking.Status)
	r.POST("/order/cancel", h.Booking.Cancel)

	r.POST("/webhook/booking-status", h.Booking.Webhook)

	r.NoRoute(func(c *gin.Context) {
		log.Debug("route not found",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   gin.H{"message": "route not found", "code": "not-found"},
		})
	})
}
