package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/tickbus"
)

// countingFetchAdapter wraps MockAdapter and counts FetchOHLC invocations, so
// tests can assert the REST fallback keeps polling rather than firing once.
type countingFetchAdapter struct {
	*MockAdapter
	fetches atomic.Int64
}

func (c *countingFetchAdapter) FetchOHLC(ctx context.Context, symbols []domain.Symbol) ([]domain.Tick, error) {
	c.fetches.Add(1)
	return c.MockAdapter.FetchOHLC(ctx, symbols)
}

// fakeClock gives tests full control over the wall clock the Supervisor
// consults for staleness checks.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestSupervisor_BecomesHealthyOnFirstTick(t *testing.T) {
	adapter := NewMockAdapter([]domain.Tick{
		{Symbol: domain.NIFTY, Price: 100},
	}, 5*time.Millisecond)
	bus := tickbus.New()
	sub := bus.Subscribe(domain.NIFTY, true)
	sup := New(adapter, bus, []domain.Symbol{domain.NIFTY})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	select {
	case <-sub:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick to be published")
	}

	assert.Eventually(t, func() bool { return sup.State() == StateHealthy }, time.Second, 5*time.Millisecond)
}

func TestSupervisor_ReachesTokenExpiredAfterMaxAuthFailures(t *testing.T) {
	adapter := NewMockAdapter(nil, time.Minute)
	adapter.FailAuthNTimes(maxAuthFailures)
	bus := tickbus.New()
	sup := New(adapter, bus, []domain.Symbol{domain.NIFTY})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	assert.Eventually(t, func() bool { return sup.State() == StateTokenExpired }, 5*time.Second, 10*time.Millisecond)
}

func TestSupervisor_ForceReconnectDoesNotTerminateTheRunLoop(t *testing.T) {
	adapter := NewMockAdapter([]domain.Tick{{Symbol: domain.NIFTY, Price: 100}}, time.Hour)
	bus := tickbus.New()
	sup := New(adapter, bus, []domain.Symbol{domain.NIFTY})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sup.State() == StateConnecting }, time.Second, 5*time.Millisecond)

	sup.ForceReconnect()

	// The loop must come back around to CONNECTING, not exit.
	assert.Eventually(t, func() bool { return sup.State() == StateConnecting }, 3*time.Second, 10*time.Millisecond)
	select {
	case <-done:
		t.Fatal("Run exited after ForceReconnect instead of looping back to reconnect")
	default:
	}
}

func TestSupervisor_LastTickAgeReflectsFakeClock(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	sup := New(NewMockAdapter(nil, time.Minute), tickbus.New(), []domain.Symbol{domain.NIFTY})
	sup.clock = clock

	sup.onTick(domain.Tick{Symbol: domain.NIFTY, Price: 100})
	clock.Advance(10 * time.Second)

	age, ok := sup.LastTickAge(domain.NIFTY)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, age)
}

func TestSupervisor_LastTickAge_UnknownSymbolReturnsFalse(t *testing.T) {
	sup := New(NewMockAdapter(nil, time.Minute), tickbus.New(), []domain.Symbol{domain.NIFTY})
	_, ok := sup.LastTickAge(domain.NIFTY)
	assert.False(t, ok)
}

func TestSupervisor_StaleThreshold_TightensWhenMarketOpen(t *testing.T) {
	sup := New(NewMockAdapter(nil, time.Minute), tickbus.New(), []domain.Symbol{domain.NIFTY})
	sup.SetMarketOpen(true)
	assert.Equal(t, tStaleMarketOpen, sup.staleThreshold())
	sup.SetMarketOpen(false)
	assert.Equal(t, tStalePreOpen, sup.staleThreshold())
}

func TestSupervisor_RunRESTFallback_KeepsPollingWhileInFallbackState(t *testing.T) {
	adapter := &countingFetchAdapter{MockAdapter: NewMockAdapter(
		[]domain.Tick{{Symbol: domain.NIFTY, Price: 100}}, time.Hour,
	)}
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	sup := New(adapter, tickbus.New(), []domain.Symbol{domain.NIFTY})
	sup.clock = clock
	sup.setState(StateDegraded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.RunRESTFallback(ctx)

	// First poll tick marks degradedSince; give it a moment to land, then
	// advance the fake clock past T_rest so the next tick flips into
	// FALLBACK_REST and polls for the first time.
	time.Sleep(restPollInterval + 500*time.Millisecond)
	clock.Advance(tRest + time.Second)

	assert.Eventually(t, func() bool { return sup.State() == StateFallbackREST }, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return adapter.fetches.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	firstCount := adapter.fetches.Load()
	// A single fix-in-place poll is not enough: the loop must keep firing on
	// every subsequent tick of the fallback poller while in FALLBACK_REST.
	assert.Eventually(t, func() bool { return adapter.fetches.Load() > firstCount }, 5*time.Second, 50*time.Millisecond)
}

func TestSupervisor_RunWatchdog_ForcesReconnectOnLongStaleness(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	sup := New(NewMockAdapter(nil, time.Minute), tickbus.New(), []domain.Symbol{domain.NIFTY})
	sup.clock = clock
	sup.lastTickAt[domain.NIFTY] = clock.Now()
	sup.SetMarketOpen(true)

	// Push the fake clock far enough past tStaleMarketOpen+5s that the
	// watchdog's long-stale check trips on its very first tick.
	clock.Advance(tStaleMarketOpen + 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.RunWatchdog(ctx)

	assert.Eventually(t, func() bool { return sup.State() == StateDegraded }, 3*time.Second, 20*time.Millisecond)
	// ForceReconnect clears every symbol's last-tick time.
	assert.Eventually(t, func() bool { _, ok := sup.LastTickAge(domain.NIFTY); return !ok }, 3*time.Second, 20*time.Millisecond)
}
