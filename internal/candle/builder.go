// Package candle aggregates ticks into rolling per-(symbol, timeframe) OHLCV
// rings (spec §4.D). Grounded on the candle-ring pattern in
// other_examples/…zerodha-websocket.go (a circular candleBuffer per symbol),
// generalized to the multi-timeframe, boundary-aligned builder the spec calls
// for, with Wilder-style volume re-basing on a cumulative-volume reset.
package candle

import (
	"sync"
	"time"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// Retention per timeframe (spec §3: K >= 60 for 1m, >= 40 for 5m/15m).
const (
	Retain1m  = 60
	Retain5m  = 40
	Retain15m = 40
)

var timeframeDurations = map[domain.Timeframe]time.Duration{
	domain.TF1m:  time.Minute,
	domain.TF5m:  5 * time.Minute,
	domain.TF15m: 15 * time.Minute,
}

var timeframeRetention = map[domain.Timeframe]int{
	domain.TF1m:  Retain1m,
	domain.TF5m:  Retain5m,
	domain.TF15m: Retain15m,
}

// ring is a fixed-capacity FIFO of finalized candles for one (symbol, timeframe).
type ring struct {
	buf      []domain.Candle
	cap      int
	lastCumVol int64
	havePrev bool
	partial  domain.Candle
}

func newRing(cap int) *ring {
	return &ring{buf: make([]domain.Candle, 0, cap), cap: cap}
}

func (r *ring) push(c domain.Candle) {
	r.buf = append(r.buf, c)
	if len(r.buf) > r.cap {
		r.buf = r.buf[len(r.buf)-r.cap:]
	}
}

// Snapshot is a read-only, copied-out view of a ring's history plus its
// currently-forming partial candle — the bounded-window copy the spec's
// Indicator Pool reads through (spec §5 Ownership).
type Snapshot struct {
	Finalized []domain.Candle
	Partial   domain.Candle
}

// Builder owns all rings for all (symbol, timeframe) pairs it has seen.
type Builder struct {
	mu    sync.RWMutex
	rings map[domain.Symbol]map[domain.Timeframe]*ring
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{rings: make(map[domain.Symbol]map[domain.Timeframe]*ring)}
}

func (b *Builder) ringFor(sym domain.Symbol, tf domain.Timeframe) *ring {
	b.mu.Lock()
	defer b.mu.Unlock()
	byTF, ok := b.rings[sym]
	if !ok {
		byTF = make(map[domain.Timeframe]*ring)
		b.rings[sym] = byTF
	}
	r, ok := byTF[tf]
	if !ok {
		r = newRing(timeframeRetention[tf])
		byTF[tf] = r
	}
	return r
}

// bucketStart truncates a timestamp down to the IST-aligned timeframe boundary.
func bucketStart(ts time.Time, tf domain.Timeframe) time.Time {
	d := timeframeDurations[tf]
	return ts.Truncate(d)
}

// OnTick applies one tick to every timeframe ring for its symbol. A tick whose
// bucket is the current partial's is applied to the partial whatever its
// arrival order; a tick from an earlier bucket is dropped, per spec §4.D.
func (b *Builder) OnTick(t domain.Tick) {
	for _, tf := range []domain.Timeframe{domain.TF1m, domain.TF5m, domain.TF15m} {
		b.applyToRing(t, tf)
	}
}

const outOfOrderTolerance = 2 * time.Second

func (b *Builder) applyToRing(t domain.Tick, tf domain.Timeframe) {
	r := b.ringFor(t.Symbol, tf)
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := bucketStart(t.TS, tf)

	if r.partial.OpenTS.IsZero() {
		r.partial = domain.Candle{
			Symbol: t.Symbol, TF: tf, OpenTS: bucket,
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price,
			Volume: r.consumeVolume(t), OIClose: t.OI,
		}
		return
	}

	switch {
	case bucket.Equal(r.partial.OpenTS):
		updatePartial(&r.partial, t, r.consumeVolume(t))
	case bucket.After(r.partial.OpenTS):
		// Boundary crossed: finalize the old partial, open a new one.
		finalized := r.partial
		finalized.Final = true
		r.push(finalized)
		r.partial = domain.Candle{
			Symbol: t.Symbol, TF: tf, OpenTS: bucket,
			Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price,
			Volume: r.consumeVolume(t), OIClose: t.OI,
		}
	default:
		// Tick's bucket is before the current partial's bucket. Bucket
		// starts differ by at least one whole timeframe, so this tolerance
		// check never passes and such a tick is always dropped.
		if r.partial.OpenTS.Sub(bucket) <= outOfOrderTolerance {
			updatePartial(&r.partial, t, r.consumeVolume(t))
		}
		// else: dropped, per spec §4.D. The cumulative-volume baseline is
		// left untouched so the next in-order tick's delta isn't computed
		// against a stale or out-of-order reading.
	}
}

// consumeVolume computes the tick's volume delta against the ring's
// cumulative-volume baseline and advances the baseline. Callers must only
// invoke this for a tick that is actually applied to the partial candle.
func (r *ring) consumeVolume(t domain.Tick) int64 {
	volDelta := int64(0)
	if r.havePrev && t.CumulativeVolume >= r.lastCumVol {
		volDelta = t.CumulativeVolume - r.lastCumVol
	}
	r.lastCumVol = t.CumulativeVolume
	r.havePrev = true
	return volDelta
}

func updatePartial(p *domain.Candle, t domain.Tick, volDelta int64) {
	if t.Price > p.High {
		p.High = t.Price
	}
	if t.Price < p.Low {
		p.Low = t.Price
	}
	p.Close = t.Price
	p.Volume += volDelta
	p.OIClose = t.OI
}

// Read returns a copied-out snapshot of the finalized ring plus the partial
// candle for a (symbol, timeframe) pair.
func (b *Builder) Read(sym domain.Symbol, tf domain.Timeframe) Snapshot {
	r := b.ringFor(sym, tf)
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Candle, len(r.buf))
	copy(out, r.buf)
	return Snapshot{Finalized: out, Partial: r.partial}
}
