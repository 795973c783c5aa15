// Package handlers is the gateway's JSON boundary: typed request parsing,
// the response envelope and the mapping from the error taxonomy onto HTTP
// statuses.
package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stayflow/gateway/internal/app/middleware"
	"github.com/stayflow/gateway/internal/app/models"
)

// Meta travels on every response envelope.
type Meta struct {
	FromCache       bool    `json:"from_cache,omitempty"`
	CacheAgeSeconds float64 `json:"cache_age,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	Timestamp       string  `json:"timestamp"`
	RequestID       string  `json:"request_id,omitempty"`
	Sandbox         bool    `json:"sandbox_restriction,omitempty"`
}

func newMeta(c *gin.Context, start time.Time) Meta {
	return Meta{
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RequestID:  middleware.RequestID(c),
	}
}

func respondOK(c *gin.Context, start time.Time, body gin.H) {
	respondOKMeta(c, newMeta(c, start), body)
}

func respondOKMeta(c *gin.Context, meta Meta, body gin.H) {
	out := gin.H{"success": true, "meta": meta}
	for k, v := range body {
		out[k] = v
	}
	c.JSON(200, out)
}

func respondError(c *gin.Context, start time.Time, err error) {
	meta := newMeta(c, start)
	if errors.Is(err, models.ErrSandboxRestriction) {
		meta.Sandbox = true
	}
	c.JSON(models.HTTPStatus(err), gin.H{
		"success": false,
		"meta":    meta,
		"error": gin.H{
			"message": err.Error(),
			"code":    models.ErrorCode(err),
		},
	})
}

func respondBadRequest(c *gin.Context, start time.Time, err error) {
	respondError(c, start, fmt.Errorf("%v: %w", err, models.ErrInvalidInput))
}
