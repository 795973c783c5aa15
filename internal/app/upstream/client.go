// Package upstream is the sole adapter to the hotel distribution B2B API.
// Every call goes through the rate governor, carries partner basic auth,
// parses the common {status,data,error,debug} envelope and maps failures
// onto the gateway error taxonomy.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/models"
	"github.com/stayflow/gateway/internal/app/observability/metrics"
)

// Upstream endpoint paths. These double as governor keys.
const (
	EndpointRegionSearch  = "/search/serp/region/"
	EndpointHotelsSearch  = "/search/serp/hotels/"
	EndpointHotelPage     = "/search/hp/"
	EndpointHotelInfo     = "/hotel/info/"
	EndpointPrebook       = "/hotel/prebook/"
	EndpointBookingForm   = "/hotel/order/booking/form/"
	EndpointBookingFinish = "/hotel/order/booking/finish/"
	EndpointBookingStatus = "/hotel/order/booking/finish/status/"
	EndpointOrderInfo     = "/hotel/order/info/"
	EndpointOrderCancel   = "/hotel/order/cancel/"
	EndpointMulticomplete = "/search/multicomplete/"
	EndpointFilterValues  = "/hotel/filters/"
)

// Per-operation timeouts; the inbound request deadline is the outer bound.
const (
	searchTimeout    = 30 * time.Second
	hotelInfoTimeout = 15 * time.Second
	prebookTimeout   = 20 * time.Second
	bookingTimeout   = 30 * time.Second
	defaultTimeout   = 15 * time.Second
)

const (
	maxRetries      = 3
	retryBaseDelay  = time.Second
	breakerFailures = 8
)

// Governor admits upstream calls under the per-endpoint quota.
type Governor interface {
	Admit(ctx context.Context, endpoint string) error
}

// envelope is the invariant upstream response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Debug  json.RawMessage `json:"debug,omitempty"`
}

// Client issues typed requests against the upstream API.
type Client struct {
	baseURL        string
	contentBaseURL string
	partnerID      string
	apiKey         string
	httpClient     *http.Client
	governor       Governor
	breaker        *gobreaker.CircuitBreaker
	logger         *zap.Logger
	retryBase      time.Duration
}

func NewClient(baseURL, contentBaseURL, partnerID, apiKey string, governor Governor, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "upstream",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		baseURL:        baseURL,
		contentBaseURL: contentBaseURL,
		partnerID:      partnerID,
		apiKey:         apiKey,
		httpClient:     &http.Client{},
		governor:       governor,
		breaker:        breaker,
		logger:         logger,
		retryBase:      retryBaseDelay,
	}
}

// post runs a governed, retried POST against the upstream and decodes the
// envelope data into out. Transient failures (timeout, 5xx, connection
// reset) retry up to maxRetries with exponential backoff from retryBaseDelay;
// everything else is permanent.
func (c *Client) post(ctx context.Context, endpoint string, timeout time.Duration, body, out any) error {
	return c.call(ctx, endpoint, timeout, body, out, maxRetries)
}

// postOnce is the single-shot variant for operations whose effect at the
// upstream is unknown after a transport failure. Progress is then observed
// through a status read, never by re-issuing the request.
func (c *Client) postOnce(ctx context.Context, endpoint string, timeout time.Duration, body, out any) error {
	return c.call(ctx, endpoint, timeout, body, out, 0)
}

func (c *Client) call(ctx context.Context, endpoint string, timeout time.Duration, body, out any, retries uint64) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", endpoint, models.ErrInternal)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBase

	// Every attempt is admitted separately: retried requests still count
	// against the upstream quota.
	operation := func() error {
		if err := c.governor.Admit(ctx, endpoint); err != nil {
			return backoff.Permanent(err)
		}
		return c.attempt(ctx, endpoint, timeout, payload, out)
	}
	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))

	m := metrics.Get()
	m.UpstreamRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
	if err != nil {
		m.UpstreamErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
	}

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return fmt.Errorf("upstream %s: %w", endpoint, models.ErrTimeout)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, endpoint string, timeout time.Duration, payload []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", models.ErrInternal))
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.partnerID, c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classifyTransport(err)
		}
		return rawResponse{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(fmt.Errorf("upstream circuit open: %w", models.ErrBackendUnavailable))
		}
		c.logger.Warn("upstream call failed",
			zap.String("endpoint", endpoint),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return err
	}

	rr := res.(rawResponse)
	if err := classifyHTTP(rr.status); err != nil {
		c.logger.Warn("upstream returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", rr.status))
		return err
	}

	var env envelope
	if err := json.Unmarshal(rr.body, &env); err != nil {
		return backoff.Permanent(fmt.Errorf("parse envelope for %s: %w", endpoint, models.ErrUpstream))
	}
	if env.Status != "ok" {
		return backoff.Permanent(classifyEnvelope(env))
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("parse data for %s: %w", endpoint, models.ErrUpstream))
		}
	}

	c.logger.Debug("upstream call ok",
		zap.String("endpoint", endpoint),
		zap.Duration("duration", time.Since(start)))
	return nil
}

type rawResponse struct {
	status int
	body   []byte
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("upstream request: %w", models.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return backoff.Permanent(fmt.Errorf("upstream request cancelled: %w", models.ErrTimeout))
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("upstream request: %w", models.ErrTimeout)
	}
	// Connection resets and other transport hiccups are transient.
	return fmt.Errorf("upstream transport: %v: %w", err, models.ErrUpstream)
}

func classifyHTTP(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("upstream throttled despite governor: %w", models.ErrQuotaExhausted))
	case status >= 500:
		return fmt.Errorf("upstream http %d: %w", status, models.ErrUpstream)
	case status >= 400:
		return backoff.Permanent(fmt.Errorf("upstream http %d: %w", status, models.ErrUpstream))
	default:
		return nil
	}
}

func classifyEnvelope(env envelope) error {
	switch env.Error {
	case "sandbox_restriction":
		return fmt.Errorf("upstream reported %q: %w", env.Error, models.ErrSandboxRestriction)
	case "not_found", "hotel_not_found", "order_not_found":
		return fmt.Errorf("upstream reported %q: %w", env.Error, models.ErrNotFound)
	case "rate_limit_exceeded", "too_many_requests":
		return fmt.Errorf("upstream reported %q: %w", env.Error, models.ErrQuotaExhausted)
	default:
		return fmt.Errorf("upstream status %q error %q: %w", env.Status, env.Error, models.ErrUpstream)
	}
}
