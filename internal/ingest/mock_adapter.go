package ingest

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// MockAdapter is an offline BrokerAdapter used by selftest and tests: it
// replays a fixed tick sequence with no network I/O.
type MockAdapter struct {
	mu         sync.Mutex
	Ticks      []domain.Tick
	interval   time.Duration
	failAuth   int // number of Connect calls that should report an auth failure
	calls      int
	chainCalls map[domain.Symbol]int
}

// NewMockAdapter builds a mock that replays ticks spaced `interval` apart.
func NewMockAdapter(ticks []domain.Tick, interval time.Duration) *MockAdapter {
	return &MockAdapter{Ticks: ticks, interval: interval}
}

// FailAuthNTimes configures the next N Connect calls to return ErrAuthFailed.
func (m *MockAdapter) FailAuthNTimes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAuth = n
}

func (m *MockAdapter) Connect(ctx context.Context, symbols []domain.Symbol, onTick func(domain.Tick)) error {
	m.mu.Lock()
	m.calls++
	if m.failAuth > 0 {
		m.failAuth--
		m.mu.Unlock()
		return ErrAuthFailed
	}
	m.mu.Unlock()

	wanted := make(map[domain.Symbol]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	idx := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if idx >= len(m.Ticks) {
				return nil
			}
			t := m.Ticks[idx]
			idx++
			if wanted[t.Symbol] {
				onTick(t)
			}
		}
	}
}

func (m *MockAdapter) Close() error { return nil }

func (m *MockAdapter) FetchOHLC(ctx context.Context, symbols []domain.Symbol) ([]domain.Tick, error) {
	out := make([]domain.Tick, 0, len(symbols))
	wanted := make(map[domain.Symbol]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	for _, t := range m.Ticks {
		if wanted[t.Symbol] {
			tc := t
			tc.Source = "rest"
			out = append(out, tc)
		}
	}
	return out, nil
}

// FetchOptionChain synthesizes a small deterministic strike band around a
// nominal spot price (the fixture's first tick for sym, or a fixed seed if
// none is present), with OI drifting upward on each call so tests and
// selftest can exercise PCR/OI-momentum transitions without a live broker.
func (m *MockAdapter) FetchOptionChain(ctx context.Context, sym domain.Symbol) ([]OptionChainRow, error) {
	meta, ok := domain.Meta(sym)
	if !ok {
		return nil, nil
	}

	m.mu.Lock()
	if m.chainCalls == nil {
		m.chainCalls = make(map[domain.Symbol]int)
	}
	m.chainCalls[sym]++
	call := m.chainCalls[sym]
	m.mu.Unlock()

	spot := m.nominalSpot(sym)
	atm := math.Round(spot/meta.StrikeSpacing) * meta.StrikeSpacing

	rows := make([]OptionChainRow, 0, 5)
	for i := -2; i <= 2; i++ {
		strike := atm + float64(i)*meta.StrikeSpacing
		base := int64(10000 + 500*call)
		callOI := base - int64(i)*200
		putOI := base + int64(i)*150
		if callOI < 0 {
			callOI = 0
		}
		if putOI < 0 {
			putOI = 0
		}
		rows = append(rows, OptionChainRow{
			Strike:  strike,
			CallOI:  callOI,
			PutOI:   putOI,
			CallLTP: math.Max(1, spot-strike) + 20,
			PutLTP:  math.Max(1, strike-spot) + 15,
		})
	}
	return rows, nil
}

// nominalSpot returns the fixture's first price for sym, falling back to a
// fixed per-symbol seed if the fixture carries no ticks for it.
func (m *MockAdapter) nominalSpot(sym domain.Symbol) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.Ticks {
		if t.Symbol == sym {
			return t.Price
		}
	}
	switch sym {
	case domain.NIFTY:
		return 22500
	case domain.BANKNIFTY:
		return 48000
	default:
		return 74000
	}
}

func (m *MockAdapter) SetAccessToken(token string) {}
