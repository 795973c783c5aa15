package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stayflow/gateway/internal/pkg/ratelimit"
)

// Pinger is the liveness probe into the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GovernorStatus exposes the rate governor's window snapshot.
type GovernorStatus interface {
	Snapshot() []ratelimit.Status
}

type HealthHandlers struct {
	db       Pinger
	governor GovernorStatus
}

func NewHealthHandlers(db Pinger, governor GovernorStatus) *HealthHandlers {
	return &HealthHandlers{db: db, governor: governor}
}

// Healthz handles GET /healthz. A broken database turns the probe red; the
// governor snapshot is informational.
func (h *HealthHandlers) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	healthy := true
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = err.Error()
		healthy = false
	}

	status := 200
	overall := "ok"
	if !healthy {
		status = 503
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"database":   dbStatus,
		"rate_limit": h.governor.Snapshot(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
