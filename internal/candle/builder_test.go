package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/domain"
)

func mustIST(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func tick(loc *time.Location, sym domain.Symbol, ts time.Time, price float64, cumVol int64, oi int64) domain.Tick {
	return domain.Tick{Symbol: sym, TS: ts, Price: price, CumulativeVolume: cumVol, OI: oi}
}

func TestBuilder_FinalizesOnBoundaryCrossing(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	for i := 0; i < 60; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		b.OnTick(tick(loc, domain.NIFTY, ts, 100+float64(i), int64(i+1)*10, 1000))
	}
	// First tick of the next minute crosses the boundary and finalizes minute one.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(61*time.Second), 200, 700, 1000))

	snap := b.Read(domain.NIFTY, domain.TF1m)
	require.Len(t, snap.Finalized, 1)
	c := snap.Finalized[0]
	assert.True(t, c.Final)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 159.0, c.High)
	assert.Equal(t, 100.0, c.Low)
	assert.Equal(t, 159.0, c.Close)
	assert.Equal(t, int64(590), c.Volume) // 59 deltas of 10 (the first tick seeds the baseline with no delta)
}

func TestBuilder_NonMonotonicArrivalWithinSameBucketUpdatesHighLow(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	b.OnTick(tick(loc, domain.NIFTY, base, 100, 10, 1000))
	b.OnTick(tick(loc, domain.NIFTY, base.Add(5*time.Second), 105, 20, 1000))
	// Arrives later in wall-clock order than the tick above, but its own
	// timestamp still falls in the same minute bucket as the partial.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(1*time.Second), 99, 25, 1000))

	snap := b.Read(domain.NIFTY, domain.TF1m)
	assert.Equal(t, 99.0, snap.Partial.Low)
	assert.Equal(t, 105.0, snap.Partial.High)
}

func TestBuilder_FarOutOfOrderIsDropped(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 16, 0, 0, loc)

	b.OnTick(tick(loc, domain.NIFTY, base, 100, 10, 1000))
	// A tick claiming the previous minute: more than 2s before the partial's
	// bucket start, so it must be dropped rather than mutating the partial.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(-10*time.Second), 5000, 999999, 1000))

	snap := b.Read(domain.NIFTY, domain.TF1m)
	assert.Equal(t, 100.0, snap.Partial.High)
	assert.Equal(t, 100.0, snap.Partial.Low)
}

func TestBuilder_CumulativeVolumeDecreaseRebaselines(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	b.OnTick(tick(loc, domain.NIFTY, base, 100, 1000, 1000))
	b.OnTick(tick(loc, domain.NIFTY, base.Add(time.Second), 101, 1100, 1000))
	// Session reset: cumulative volume drops.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(2*time.Second), 102, 50, 1000))

	snap := b.Read(domain.NIFTY, domain.TF1m)
	// 0 (first tick seeds the baseline) + 100 (delta 1000->1100) + 0 (reset,
	// no negative delta emitted).
	assert.Equal(t, int64(100), snap.Partial.Volume)
}

func TestBuilder_DroppedOutOfOrderTickDoesNotCorruptVolumeBaseline(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 16, 0, 0, loc)

	b.OnTick(tick(loc, domain.NIFTY, base, 100, 1000, 1000))
	// Dropped: more than 2s before the partial's bucket start, carrying a
	// huge cumulative volume that must not become the new baseline.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(-10*time.Second), 5000, 999999, 1000))
	// Legitimately in-order: its delta must be measured against the last
	// tick that was actually applied (1000), not the dropped tick's 999999.
	b.OnTick(tick(loc, domain.NIFTY, base.Add(1*time.Second), 101, 1100, 1000))

	snap := b.Read(domain.NIFTY, domain.TF1m)
	assert.Equal(t, int64(100), snap.Partial.Volume)
	assert.Equal(t, 101.0, snap.Partial.Close)
}

func TestBuilder_RetentionCapsRingLength(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	for i := 0; i < Retain1m+10; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		b.OnTick(tick(loc, domain.NIFTY, ts, float64(100+i), int64(i+1)*10, 1000))
	}

	snap := b.Read(domain.NIFTY, domain.TF1m)
	assert.LessOrEqual(t, len(snap.Finalized), Retain1m)
}

// TestBuilder_IdempotentOnReplay is the spec §8 idempotence property: feeding
// the same tick sequence twice to a fresh Candle Builder yields bitwise-equal
// ring contents.
func TestBuilder_IdempotentOnReplay(t *testing.T) {
	loc := mustIST(t)
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	ticks := make([]domain.Tick, 0, 150)
	for i := 0; i < 150; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		ticks = append(ticks, tick(loc, domain.NIFTY, ts, 100+float64(i)*0.1, int64(i+1)*5, int64(1000+i)))
	}

	b1 := New()
	for _, tk := range ticks {
		b1.OnTick(tk)
	}
	b2 := New()
	for _, tk := range ticks {
		b2.OnTick(tk)
	}

	snap1 := b1.Read(domain.NIFTY, domain.TF1m)
	snap2 := b2.Read(domain.NIFTY, domain.TF1m)
	assert.Equal(t, snap1.Finalized, snap2.Finalized)
	assert.Equal(t, snap1.Partial, snap2.Partial)
}

func TestBuilder_MultipleSymbolsAreIndependent(t *testing.T) {
	loc := mustIST(t)
	b := New()
	base := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)

	b.OnTick(tick(loc, domain.NIFTY, base, 100, 10, 1000))
	b.OnTick(tick(loc, domain.BANKNIFTY, base, 500, 10, 1000))

	niftySnap := b.Read(domain.NIFTY, domain.TF1m)
	bankSnap := b.Read(domain.BANKNIFTY, domain.TF1m)
	assert.Equal(t, 100.0, niftySnap.Partial.Open)
	assert.Equal(t, 500.0, bankSnap.Partial.Open)
}
