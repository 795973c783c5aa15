package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/app/models"
)

// Quota is the sliding-window budget for one upstream endpoint: at most
// Requests admissions whose timestamps fall within the trailing Window.
// Endpoints with Limited=false are admitted instantly and carry no state.
type Quota struct {
	Requests int
	Window   time.Duration
	Limited  bool
}

// DefaultQuota applies to endpoints missing from the quota table.
var DefaultQuota = Quota{Requests: 30, Window: time.Minute, Limited: true}

// DefaultQuotas mirrors the upstream's published per-endpoint limits.
var DefaultQuotas = map[string]Quota{
	"/search/serp/region/":                 {Requests: 10, Window: time.Minute, Limited: true},
	"/search/serp/hotels/":                 {Requests: 150, Window: time.Minute, Limited: true},
	"/search/hp/":                          {Requests: 10, Window: time.Minute, Limited: true},
	"/hotel/info/":                         {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/prebook/":                      {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/order/booking/form/":           {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/order/booking/finish/":         {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/order/booking/finish/status/":  {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/order/info/":                   {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/order/cancel/":                 {Requests: 30, Window: time.Minute, Limited: true},
	"/search/multicomplete/":               {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/static/":                       {Requests: 30, Window: time.Minute, Limited: true},
	"/hotel/filters/":                      {Limited: false},
}

// releaseBuffer is added to every computed wait so a woken caller lands
// strictly after the oldest admission leaves the window.
const releaseBuffer = 50 * time.Millisecond

type endpointState struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Status is a side-effect-free snapshot of one endpoint's window.
type Status struct {
	Endpoint        string    `json:"endpoint"`
	Limit           int       `json:"limit"`
	Window          string    `json:"window"`
	CurrentInWindow int       `json:"current_in_window"`
	Remaining       int       `json:"remaining"`
	EarliestRelease time.Time `json:"earliest_release,omitempty"`
}

// Governor enforces per-endpoint sliding-window quotas against the upstream.
// Admit blocks the caller cooperatively until a slot is free or the caller's
// context expires.
type Governor struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	quotas    map[string]Quota
	logger    *zap.Logger
	now       func() time.Time

	// sleep is swapped out in tests; production uses a ctx-aware timer wait.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGovernor(quotas map[string]Quota, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quotas == nil {
		quotas = DefaultQuotas
	}
	return &Governor{
		endpoints: make(map[string]*endpointState),
		quotas:    quotas,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (g *Governor) quotaFor(endpoint string) Quota {
	if q, ok := g.quotas[endpoint]; ok {
		return q
	}
	return DefaultQuota
}

func (g *Governor) state(endpoint string) *endpointState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.endpoints[endpoint]
	if !ok {
		st = &endpointState{}
		g.endpoints[endpoint] = st
	}
	return st
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	// Stamps are appended in order, so the first in-window index is enough.
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(cutoff) })
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// Admit blocks until the endpoint has a free slot, recording the admission
// timestamp inside the same critical section as the check. It returns a
// timeout kind if ctx expires first.
func (g *Governor) Admit(ctx context.Context, endpoint string) error {
	q := g.quotaFor(endpoint)
	if !q.Limited {
		return nil
	}
	st := g.state(endpoint)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rate governor wait for %s: %w", endpoint, models.ErrTimeout)
		}

		st.mu.Lock()
		now := g.now()
		st.stamps = prune(st.stamps, now.Add(-q.Window))
		if len(st.stamps) < q.Requests {
			st.stamps = append(st.stamps, now)
			st.mu.Unlock()
			return nil
		}
		wait := st.stamps[0].Add(q.Window).Sub(now) + releaseBuffer
		st.mu.Unlock()

		g.logger.Debug("rate governor waiting",
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
			zap.Int("limit", q.Requests))

		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate governor wait for %s: %w", endpoint, models.ErrTimeout)
		}
	}
}

// Status returns the window snapshot for an endpoint without side effects.
func (g *Governor) Status(endpoint string) Status {
	q := g.quotaFor(endpoint)
	s := Status{Endpoint: endpoint, Limit: q.Requests, Window: q.Window.String()}
	if !q.Limited {
		s.Remaining = -1
		return s
	}

	g.mu.Lock()
	st, ok := g.endpoints[endpoint]
	g.mu.Unlock()
	if !ok {
		s.Remaining = q.Requests
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	now := g.now()
	cutoff := now.Add(-q.Window)
	inWindow := 0
	var earliest time.Time
	for _, ts := range st.stamps {
		if ts.After(cutoff) {
			if inWindow == 0 {
				earliest = ts.Add(q.Window)
			}
			inWindow++
		}
	}
	s.CurrentInWindow = inWindow
	s.Remaining = q.Requests - inWindow
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if s.Remaining == 0 {
		s.EarliestRelease = earliest
	}
	return s
}

// Snapshot returns the status of every endpoint the governor has observed.
func (g *Governor) Snapshot() []Status {
	g.mu.Lock()
	names := make([]string, 0, len(g.endpoints))
	for name := range g.endpoints {
		names = append(names, name)
	}
	g.mu.Unlock()
	sort.Strings(names)

	out := make([]Status, 0, len(names))
	for _, name := range names {
		out = append(out, g.Status(name))
	}
	return out
}

// Sweep drops endpoints whose windows have been empty for longer than their
// window length. Best-effort; Admit also prunes inline.
func (g *Governor) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	now := g.now()
	for name, st := range g.endpoints {
		q := g.quotaFor(name)
		st.mu.Lock()
		st.stamps = prune(st.stamps, now.Add(-q.Window))
		empty := len(st.stamps) == 0
		st.mu.Unlock()
		if empty {
			delete(g.endpoints, name)
			removed++
		}
	}
	return removed
}

// StartSweeper prunes idle endpoint state until ctx is cancelled.
func (g *Governor) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := g.Sweep(); n > 0 {
					g.logger.Debug("rate governor swept idle endpoints", zap.Int("removed", n))
				}
			}
		}
	}()
}
