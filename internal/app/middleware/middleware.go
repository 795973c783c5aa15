// Package middleware carries the gateway's cross-cutting gin middleware:
// request ids, CORS, per-request deadlines and security headers.
package middleware

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is echoed on every response and attached to log lines.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// RequestTimeout bounds a single client request end to end, including any
// time spent queued behind the rate-limit governor.
const RequestTimeout = 60 * time.Second

// RequestIDMiddleware assigns a uuid to every request unless the client
// already sent one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// TimeoutMiddleware attaches the per-request deadline to the context. The
// handler chain observes cancellation through ctx, not through forced
// connection teardown.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORSMiddleware allows browser clients on any origin; the gateway fronts a
// B2B API and carries no cookies.
func CORSMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, RequestIDHeader, "Authorization")
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

// SecurityMiddleware sets the usual hardening headers.
func SecurityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
