package indicators

import (
	"sync"
	"time"

	"github.com/sawpanic/indexpulse/internal/candle"
	"github.com/sawpanic/indexpulse/internal/domain"
)

// symState is the per-symbol state the pool must carry across evaluations:
// incremental EMAs, the running VWAP accumulator for the current session, the
// fixed-once ORB, prior-day OHLC for pivots, and the last-seen OI for deltas.
type symState struct {
	ema20, ema50, ema100, ema200 emaState

	vwapSumPV float64
	vwapSumV  int64
	sessionDay int // day-of-year the VWAP accumulator belongs to

	orb        domain.ORB
	orbSeeded  bool
	sessionOpenTS time.Time

	prior PriorDayOHLC

	haveOI bool
	lastOI int64
}

// Pool computes the Indicators record for a symbol on candle finalization or
// on a throttled tick-driven poll (spec §4.E). It owns no blocking I/O; it is
// invoked by whichever task observed the triggering event.
type Pool struct {
	mu     sync.Mutex
	states map[domain.Symbol]*symState
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{states: make(map[domain.Symbol]*symState)}
}

func (p *Pool) stateFor(sym domain.Symbol) *symState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[sym]
	if !ok {
		s = &symState{}
		p.states[sym] = s
	}
	return s
}

// SetPriorDayOHLC injects the prior session's settled bar for pivot
// computation. Called once per session by whatever component owns the OHLC
// fetch against the broker adapter.
func (p *Pool) SetPriorDayOHLC(sym domain.Symbol, prior PriorDayOHLC) {
	s := p.stateFor(sym)
	p.mu.Lock()
	s.prior = prior
	p.mu.Unlock()
}

// Compute derives the full Indicators record for a symbol from the Candle
// Builder's current rings across all three timeframes plus the latest tick.
// It is a pure read of its inputs plus the pool's own carried EMA/VWAP/ORB
// state; missing inputs degrade to `available=false` rather than panicking.
func (p *Pool) Compute(sym domain.Symbol, builder *candle.Builder, lastTick domain.Tick, now time.Time) domain.Indicators {
	s := p.stateFor(sym)

	snap1m := builder.Read(sym, domain.TF1m)
	snap5m := builder.Read(sym, domain.TF5m)
	snap15m := builder.Read(sym, domain.TF15m)

	out := domain.Indicators{
		Symbol:     sym,
		VersionTS:  now,
		LastPrice:  lastTick.Price,
		LastVolume: lastTick.LastTradedQty,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	computeEMAs(s, snap1m.Finalized, &out)
	computeVWAP(s, snap1m.Finalized, snap1m.Partial, now, &out)
	computeRSIATR(snap5m.Finalized, snap15m.Finalized, &out)
	computePivots(s, &out)
	computeORB(s, snap1m.Finalized, now, &out)
	computeVolumeProfile(snap1m.Finalized, snap1m.Partial, &out)
	computeOI(s, lastTick, &out)

	return out
}

func computeEMAs(s *symState, closed []domain.Candle, out *domain.Indicators) {
	if len(closed) == 0 {
		out.EMA20, out.EMA50, out.EMA100, out.EMA200 = domain.Value{}, domain.Value{}, domain.Value{}, domain.Value{}
		return
	}
	last := closed[len(closed)-1]
	out.EMA20 = domain.Value{V: s.ema20.update(last.Close, 20), Available: true}
	out.EMA50 = domain.Value{V: s.ema50.update(last.Close, 50), Available: true}
	out.EMA100 = domain.Value{V: s.ema100.update(last.Close, 100), Available: true}
	out.EMA200 = domain.Value{V: s.ema200.update(last.Close, 200), Available: true}
}

func computeVWAP(s *symState, closed []domain.Candle, partial domain.Candle, now time.Time, out *domain.Indicators) {
	day := now.YearDay()
	if s.sessionDay != day {
		s.sessionDay = day
		s.vwapSumPV = 0
		s.vwapSumV = 0
	}

	if len(closed) > 0 {
		last := closed[len(closed)-1]
		typical := (last.High + last.Low + last.Close) / 3
		s.vwapSumPV += typical * float64(last.Volume)
		s.vwapSumV += last.Volume
	}

	if s.vwapSumV > 0 {
		out.VWAP = domain.Value{V: s.vwapSumPV / float64(s.vwapSumV), Available: true}
	} else {
		out.VWAP = domain.Value{Available: false}
	}

	// VWMA20: volume-weighted over the last 20 finalized 1m candles only.
	n := len(closed)
	if n == 0 {
		out.VWMA20 = domain.Value{Available: false}
		return
	}
	start := n - 20
	if start < 0 {
		start = 0
	}
	window := closed[start:]
	sumPV, sumV := 0.0, int64(0)
	for _, c := range window {
		typical := (c.High + c.Low + c.Close) / 3
		sumPV += typical * float64(c.Volume)
		sumV += c.Volume
	}
	if sumV > 0 {
		out.VWMA20 = domain.Value{V: sumPV / float64(sumV), Available: true}
	} else {
		out.VWMA20 = domain.Value{Available: false}
	}
}

func computeRSIATR(closed5m, closed15m []domain.Candle, out *domain.Indicators) {
	const rsiPeriod, atrPeriod = 14, 14

	closes5m := make([]float64, len(closed5m))
	for i, c := range closed5m {
		closes5m[i] = c.Close
	}
	out.RSI5m = rsiFromCloses(closes5m, rsiPeriod)

	closes15m := make([]float64, len(closed15m))
	for i, c := range closed15m {
		closes15m[i] = c.Close
	}
	out.RSI15m = rsiFromCloses(closes15m, rsiPeriod)

	out.ATR14 = atrFromCandles(closed15m, atrPeriod)
}

func computePivots(s *symState, out *domain.Indicators) {
	levels, ready := classicalPivots(s.prior)
	out.Pivots = levels
	out.PivotsReady = ready
}

// computeORB fixes the opening-range-breakout window once the first 15m of
// the regular session closes, per spec §4.E. Once fixed it never changes.
func computeORB(s *symState, closed1m []domain.Candle, now time.Time, out *domain.Indicators) {
	if s.orbSeeded {
		out.ORB = s.orb
		return
	}
	if s.sessionOpenTS.IsZero() && len(closed1m) > 0 {
		s.sessionOpenTS = closed1m[0].OpenTS
	}
	if s.sessionOpenTS.IsZero() {
		out.ORB = domain.ORB{Available: false}
		return
	}

	cutoff := s.sessionOpenTS.Add(15 * time.Minute)
	if now.Before(cutoff) {
		out.ORB = domain.ORB{Available: false}
		return
	}

	high, low := -1.0, -1.0
	seen := false
	for _, c := range closed1m {
		if c.OpenTS.Before(s.sessionOpenTS) || !c.OpenTS.Before(cutoff) {
			continue
		}
		if !seen {
			high, low = c.High, c.Low
			seen = true
			continue
		}
		high = maxf(high, c.High)
		low = minf(low, c.Low)
	}
	if !seen {
		out.ORB = domain.ORB{Available: false}
		return
	}
	s.orb = domain.ORB{High: high, Low: low, FixedAt: cutoff, Available: true}
	s.orbSeeded = true
	out.ORB = s.orb
}

func computeVolumeProfile(closed []domain.Candle, partial domain.Candle, out *domain.Indicators) {
	n := len(closed)
	if n == 0 {
		out.MA20Volume = domain.Value{Available: false}
		out.VolumeProfileBucket = "UNKNOWN"
		return
	}
	start := n - 20
	if start < 0 {
		start = 0
	}
	window := closed[start:]
	sum := int64(0)
	for _, c := range window {
		sum += c.Volume
	}
	ma20 := float64(sum) / float64(len(window))
	out.MA20Volume = domain.Value{V: ma20, Available: true}

	cur := float64(partial.Volume)
	switch {
	case ma20 <= 0:
		out.VolumeProfileBucket = "UNKNOWN"
	case cur >= ma20*2:
		out.VolumeProfileBucket = "VERY_HIGH"
	case cur >= ma20*1.3:
		out.VolumeProfileBucket = "HIGH"
	case cur <= ma20*0.5:
		out.VolumeProfileBucket = "LOW"
	default:
		out.VolumeProfileBucket = "NORMAL"
	}
}

func computeOI(s *symState, t domain.Tick, out *domain.Indicators) {
	if !s.haveOI {
		s.haveOI = true
		s.lastOI = t.OI
		out.OIDelta = domain.Value{Available: false}
		out.OIPercentChg = domain.Value{Available: false}
		return
	}
	delta := t.OI - s.lastOI
	out.OIDelta = domain.Value{V: float64(delta), Available: true}
	if s.lastOI != 0 {
		out.OIPercentChg = domain.Value{V: 100 * float64(delta) / float64(s.lastOI), Available: true}
	} else {
		out.OIPercentChg = domain.Value{Available: false}
	}
	s.lastOI = t.OI
}
