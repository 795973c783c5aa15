package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayflow/gateway/internal/app/models"
)

func TestAdmitUnderQuota(t *testing.T) {
	g := NewGovernor(map[string]Quota{
		"/search/serp/region/": {Requests: 3, Window: time.Minute, Limited: true},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Admit(ctx, "/search/serp/region/"))
	}

	s := g.Status("/search/serp/region/")
	assert.Equal(t, 3, s.CurrentInWindow)
	assert.Equal(t, 0, s.Remaining)
	assert.False(t, s.EarliestRelease.IsZero())
}

func TestAdmitUnlimitedEndpoint(t *testing.T) {
	g := NewGovernor(map[string]Quota{
		"/hotel/filters/": {Limited: false},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, g.Admit(ctx, "/hotel/filters/"))
	}

	// Unlimited endpoints carry no window state.
	g.mu.Lock()
	_, tracked := g.endpoints["/hotel/filters/"]
	g.mu.Unlock()
	assert.False(t, tracked)
}

func TestAdmitDefaultQuotaForUnknownEndpoint(t *testing.T) {
	g := NewGovernor(map[string]Quota{}, nil)

	s := g.Status("/something/new/")
	assert.Equal(t, DefaultQuota.Requests, s.Limit)
}

func TestAdmitBlocksOverQuota(t *testing.T) {
	g := NewGovernor(map[string]Quota{
		"/hotel/prebook/": {Requests: 2, Window: time.Minute, Limited: true},
	}, nil)

	var slept time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		// Pretend the window moved on while we slept.
		base := g.now()
		g.now = func() time.Time { return base.Add(d) }
		return nil
	}

	ctx := context.Background()
	require.NoError(t, g.Admit(ctx, "/hotel/prebook/"))
	require.NoError(t, g.Admit(ctx, "/hotel/prebook/"))
	require.NoError(t, g.Admit(ctx, "/hotel/prebook/"))

	assert.Greater(t, slept, 59*time.Second, "third admission must wait for the window to roll")
}

func TestAdmitDeadlineReturnsTimeout(t *testing.T) {
	g := NewGovernor(map[string]Quota{
		"/search/hp/": {Requests: 1, Window: time.Minute, Limited: true},
	}, nil)

	require.NoError(t, g.Admit(context.Background(), "/search/hp/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Admit(ctx, "/search/hp/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTimeout))
}

// Admission count inside any window never exceeds the quota under
// concurrent callers.
func TestAdmitConcurrentNeverExceedsQuota(t *testing.T) {
	const limit = 10
	g := NewGovernor(map[string]Quota{
		"/search/serp/region/": {Requests: limit, Window: time.Minute, Limited: true},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	admitted := make(chan struct{}, 64)
	g.sleep = func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Admit(ctx, "/search/serp/region/"); err == nil {
				admitted <- struct{}{}
			}
		}()
	}

	// Give every goroutine a chance to race the critical section.
	deadline := time.After(2 * time.Second)
	got := 0
	for got < limit {
		select {
		case <-admitted:
			got++
		case <-deadline:
			t.Fatalf("only %d admissions, want %d", got, limit)
		}
	}

	select {
	case <-admitted:
		t.Fatal("admitted above quota")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	wg.Wait()
	assert.Equal(t, limit, g.Status("/search/serp/region/").CurrentInWindow)
}

func TestSweepDropsIdleEndpoints(t *testing.T) {
	g := NewGovernor(map[string]Quota{
		"/hotel/info/": {Requests: 5, Window: time.Minute, Limited: true},
	}, nil)

	require.NoError(t, g.Admit(context.Background(), "/hotel/info/"))
	assert.Equal(t, 0, g.Sweep(), "fresh window must survive the sweep")

	base := time.Now()
	g.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.Equal(t, 1, g.Sweep())
	assert.Equal(t, 0, g.Status("/hotel/info/").CurrentInWindow)
}
