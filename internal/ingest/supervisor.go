package ingest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/tickbus"
)

// ErrAuthFailed is returned by a BrokerAdapter.Connect call that failed due to
// an expired or invalid access token.
var ErrAuthFailed = errors.New("broker auth failed")

// State is one node of the Ingest Supervisor's state machine (spec §4.B).
type State string

const (
	StateInit          State = "INIT"
	StateConnecting    State = "CONNECTING"
	StateSubscribed    State = "SUBSCRIBED"
	StateHealthy       State = "HEALTHY"
	StateDegraded      State = "DEGRADED"
	StateBackoff       State = "BACKOFF"
	StateFallbackREST  State = "FALLBACK_REST"
	StateTokenExpired  State = "TOKEN_EXPIRED"
)

const (
	backoffBase = time.Second
	backoffCap  = 60 * time.Second

	tStaleMarketOpen = 15 * time.Second
	tStalePreOpen    = 120 * time.Second
	tRest            = 30 * time.Second

	maxAuthFailures = 3

	restPollInterval = 2 * time.Second
)

// Clock abstracts wall-clock reads so tests can control staleness detection.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Supervisor owns the single Ingest session per process per broker identity
// (spec §3 invariant). It runs as a long-lived task and is restarted by its
// own internal recovery loop on transient failure, never by tearing the
// process down (spec §9, exception-driven control flow replaced by
// result-typed returns and a supervising parent).
type Supervisor struct {
	adapter BrokerAdapter
	bus     *tickbus.Bus
	clock   Clock
	symbols []domain.Symbol

	mu             sync.RWMutex
	state          State
	lastTickAt     map[domain.Symbol]time.Time
	authFailures   int
	marketOpen     bool // set by the scheduler's open/close commands

	breaker *gobreaker.CircuitBreaker

	cancelCtx    context.Context
	cancelFunc   context.CancelFunc
}

// New creates a Supervisor. The returned Supervisor does nothing until Run is
// called.
func New(adapter BrokerAdapter, bus *tickbus.Bus, symbols []domain.Symbol) *Supervisor {
	s := &Supervisor{
		adapter:    adapter,
		bus:        bus,
		clock:      realClock{},
		symbols:    symbols,
		state:      StateInit,
		lastTickAt: make(map[domain.Symbol]time.Time),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ingest-rest-fallback",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return s
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the current state, for diagnostics (spec §4.K).
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastTickAge returns how long ago the last tick for sym arrived, and whether
// any tick has ever arrived.
func (s *Supervisor) LastTickAge(sym domain.Symbol) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastTickAt[sym]
	if !ok {
		return 0, false
	}
	return s.clock.Now().Sub(t), true
}

// SetMarketOpen is driven by the session scheduler's OPEN/CLOSE commands; it
// changes the watchdog's staleness threshold (spec §4.B T_stale).
func (s *Supervisor) SetMarketOpen(open bool) {
	s.mu.Lock()
	s.marketOpen = open
	s.mu.Unlock()
}

func (s *Supervisor) staleThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.marketOpen {
		return tStaleMarketOpen
	}
	return tStalePreOpen
}

// Run drives the state machine until ctx is cancelled. It is meant to be
// invoked as a single long-lived task.
func (s *Supervisor) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.setState(StateConnecting)

		runCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancelCtx, s.cancelFunc = runCtx, cancel
		s.mu.Unlock()

		err := s.adapter.Connect(runCtx, s.symbols, s.onTick)
		cancel()

		// A cancelled runCtx can mean either the outer ctx (real shutdown)
		// or a ForceReconnect-triggered cancel of this attempt only; only
		// the former should end the loop; the latter must fall through to
		// reconnect.
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, ErrAuthFailed) {
			s.mu.Lock()
			s.authFailures++
			failures := s.authFailures
			s.mu.Unlock()
			if failures >= maxAuthFailures {
				s.setState(StateTokenExpired)
				s.waitForTokenOrCancel(ctx)
				s.mu.Lock()
				s.authFailures = 0
				s.mu.Unlock()
				continue
			}
		}

		if s.State() == StateHealthy {
			// The attempt delivered ticks: start the next backoff from base.
			attempt = 0
		}
		s.setState(StateBackoff)
		if !s.sleepBackoff(ctx, attempt) {
			return
		}
		attempt++
	}
}

func (s *Supervisor) waitForTokenOrCancel(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Hour):
		// Held until the outer context is cancelled or an hour has passed.
		// Neither ForceReconnect nor SetAccessToken ends the wait early; a
		// newly injected token is first used by the Connect attempt that
		// follows it.
	}
}

func (s *Supervisor) sleepBackoff(ctx context.Context, attempt int) bool {
	d := backoffBase << attempt
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(float64(d) * (rand.Float64()*0.4 - 0.2))
	wait := d + jitter
	if wait < 0 {
		wait = backoffBase
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func (s *Supervisor) onTick(t domain.Tick) {
	s.mu.Lock()
	s.lastTickAt[t.Symbol] = s.clock.Now()
	s.mu.Unlock()

	if s.State() != StateHealthy {
		s.setState(StateHealthy)
	}
	s.bus.Publish(t)
}

// ForceReconnect drains the current WS, clears cached last-ticks, resets the
// watchdog, and signals the Run loop to re-enter CONNECTING. The caller (the
// diagnostics handler) is responsible for invalidating the cache for affected
// symbols before calling this, per spec §8's ordering requirement.
func (s *Supervisor) ForceReconnect() {
	s.mu.Lock()
	s.lastTickAt = make(map[domain.Symbol]time.Time)
	s.authFailures = 0
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	log.Info().Msg("ingest force-reconnect triggered")
}

// RunWatchdog is a separate long-lived task that periodically checks
// per-symbol staleness. A symbol past its threshold moves the supervisor to
// DEGRADED, once per staleness episode; a symbol more than 5s past it forces
// a reconnect, which clears the last-tick times, so the watchdog does not
// fire again for that symbol until a fresh tick arrives.
func (s *Supervisor) RunWatchdog(ctx context.Context) {
	fired := make(map[domain.Symbol]bool)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			threshold := s.staleThreshold()
			anyStale := false
			for _, sym := range s.symbols {
				age, ok := s.LastTickAge(sym)
				if !ok {
					continue
				}
				if age > threshold {
					anyStale = true
					if !fired[sym] {
						fired[sym] = true
						s.setState(StateDegraded)
					}
				} else {
					fired[sym] = false
				}
			}
			if anyStale && s.longStale(threshold) {
				s.ForceReconnect()
			}
		}
	}
}

func (s *Supervisor) longStale(threshold time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sym := range s.symbols {
		t, ok := s.lastTickAt[sym]
		if !ok {
			continue
		}
		if s.clock.Now().Sub(t) > threshold+5*time.Second {
			return true
		}
	}
	return false
}

// RunRESTFallback polls the broker REST OHLC snapshot every 2s and feeds
// synthetic ticks into the bus whenever the supervisor has sat in DEGRADED
// for longer than T_rest. It yields immediately back to WS once HEALTHY ticks
// resume (the Run loop's onTick already flips state to HEALTHY).
func (s *Supervisor) RunRESTFallback(ctx context.Context) {
	degradedSince := time.Time{}
	ticker := time.NewTicker(restPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.State()
			switch st {
			case StateFallbackREST:
				// Already polling; fall through to poll again below.
			case StateDegraded:
				if degradedSince.IsZero() {
					degradedSince = s.clock.Now()
					continue
				}
				if s.clock.Now().Sub(degradedSince) < tRest {
					continue
				}
				s.setState(StateFallbackREST)
			default:
				// WS is healthy or not yet degraded; nothing to poll.
				degradedSince = time.Time{}
				continue
			}

			_, err := s.breaker.Execute(func() (interface{}, error) {
				fctx, cancel := context.WithTimeout(ctx, restTimeout)
				defer cancel()
				ticks, err := s.adapter.FetchOHLC(fctx, s.symbols)
				if err != nil {
					return nil, err
				}
				for _, t := range ticks {
					s.mu.Lock()
					s.lastTickAt[t.Symbol] = s.clock.Now()
					s.mu.Unlock()
					s.bus.Publish(t)
				}
				return nil, nil
			})
			if err != nil {
				log.Warn().Err(err).Msg("REST fallback poll failed")
			}
		}
	}
}
