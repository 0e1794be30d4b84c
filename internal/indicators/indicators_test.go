package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/candle"
	"github.com/sawpanic/indexpulse/internal/domain"
)

func TestEMAState_SeedsOnFirstValue(t *testing.T) {
	var e emaState
	v := e.update(100, 20)
	assert.Equal(t, 100.0, v)
}

func TestEMAState_RecurrenceMatchesMultiplyAdd(t *testing.T) {
	var e emaState
	e.update(100, 10)
	got := e.update(110, 10)

	alpha := 2.0 / 11.0
	want := 100 + alpha*(110-100)
	assert.InDelta(t, want, got, 1e-9)
}

func closesUp(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func TestRSI_AllGainsYieldsHundred(t *testing.T) {
	v := rsiFromCloses(closesUp(20, 100), 14)
	require.True(t, v.Available)
	assert.Equal(t, 100.0, v.V)
}

func TestRSI_InsufficientHistoryIsUnavailable(t *testing.T) {
	v := rsiFromCloses(closesUp(5, 100), 14)
	assert.False(t, v.Available)
}

func TestRSI_FlatClosesHitsCeiling(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	v := rsiFromCloses(closes, 14)
	require.True(t, v.Available)
	// No gains and no losses: avgGain=avgLoss=0, RSI implementation treats
	// avgLoss==0 as the "all gains" ceiling.
	assert.Equal(t, 100.0, v.V)
}

func candlesWithRange(n int, base float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Open: base, High: base + 2, Low: base - 2, Close: base,
		}
	}
	return out
}

func TestATR_ConstantRangeConverges(t *testing.T) {
	v := atrFromCandles(candlesWithRange(20, 100), 14)
	require.True(t, v.Available)
	assert.InDelta(t, 4.0, v.V, 1e-6)
}

func TestATR_InsufficientHistoryIsUnavailable(t *testing.T) {
	v := atrFromCandles(candlesWithRange(5, 100), 14)
	assert.False(t, v.Available)
}

func TestClassicalPivots_MatchesFloorTraderFormula(t *testing.T) {
	prior := PriorDayOHLC{Open: 100, High: 110, Low: 90, Close: 105, Available: true}
	levels, ready := classicalPivots(prior)
	require.True(t, ready)

	wantPivot := (110.0 + 90.0 + 105.0) / 3
	assert.InDelta(t, wantPivot, levels.Pivot, 1e-9)
	assert.InDelta(t, 2*wantPivot-90, levels.R1, 1e-9)
	assert.InDelta(t, 2*wantPivot-110, levels.S1, 1e-9)
	assert.InDelta(t, 110.0+2*(wantPivot-90), levels.R3, 1e-9)
	assert.InDelta(t, 90.0-2*(110.0-wantPivot), levels.S3, 1e-9)
}

func TestClassicalPivots_UnavailableWithoutPriorDay(t *testing.T) {
	_, ready := classicalPivots(PriorDayOHLC{})
	assert.False(t, ready)
}

func TestPool_Compute_DegradesGracefullyWithNoHistory(t *testing.T) {
	p := New()
	b := candle.New()
	now := time.Now()

	ind := p.Compute(domain.NIFTY, b, domain.Tick{Symbol: domain.NIFTY, Price: 100}, now)

	assert.False(t, ind.EMA20.Available)
	assert.False(t, ind.RSI5m.Available)
	assert.False(t, ind.ATR14.Available)
	assert.False(t, ind.PivotsReady)
	assert.False(t, ind.ORB.Available)
	assert.False(t, ind.OIDelta.Available, "first OI reading has no prior baseline to diff against")
}

func TestPool_Compute_OIDeltaAvailableAfterSecondReading(t *testing.T) {
	p := New()
	b := candle.New()
	now := time.Now()

	p.Compute(domain.NIFTY, b, domain.Tick{Symbol: domain.NIFTY, OI: 1000}, now)
	ind := p.Compute(domain.NIFTY, b, domain.Tick{Symbol: domain.NIFTY, OI: 1100}, now)

	require.True(t, ind.OIDelta.Available)
	assert.Equal(t, 100.0, ind.OIDelta.V)
	require.True(t, ind.OIPercentChg.Available)
	assert.InDelta(t, 10.0, ind.OIPercentChg.V, 1e-9)
}

func TestPool_Compute_ORBUnavailableWithoutFinalizedHistory(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	p := New()
	b := candle.New()

	sessionOpen := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)
	b.OnTick(domain.Tick{Symbol: domain.NIFTY, TS: sessionOpen, Price: 100, CumulativeVolume: 10})

	// Only a partial candle exists (no minute boundary crossed yet), so the
	// opening range cannot be fixed regardless of how much wall-clock time
	// has passed.
	ind := p.Compute(domain.NIFTY, b, domain.Tick{Symbol: domain.NIFTY, Price: 100}, sessionOpen.Add(20*time.Minute))
	assert.False(t, ind.ORB.Available)
}
