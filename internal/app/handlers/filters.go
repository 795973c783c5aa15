package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FilterService is the slice of the filters/autocomplete layer the handlers
// use.
type FilterService interface {
	FilterValues(ctx context.Context) (json.RawMessage, error)
	Autocomplete(ctx context.Context, query, locale string) (json.RawMessage, error)
}

type FilterHandlers struct {
	svc    FilterService
	logger *zap.Logger
}

func NewFilterHandlers(svc FilterService, logger *zap.Logger) *FilterHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterHandlers{svc: svc, logger: logger}
}

// FilterValues handles GET /filter-values.
func (h *FilterHandlers) FilterValues(c *gin.Context) {
	start := time.Now()

	values, err := h.svc.FilterValues(c.Request.Context())
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"data": values})
}

// Autocomplete handles GET /autocomplete.
func (h *FilterHandlers) Autocomplete(c *gin.Context) {
	start := time.Now()

	results, err := h.svc.Autocomplete(c.Request.Context(), c.Query("query"), c.Query("locale"))
	if err != nil {
		respondError(c, start, err)
		return
	}
	respondOK(c, start, gin.H{"data": results})
}
