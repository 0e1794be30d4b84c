package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/candle"
	"github.com/sawpanic/indexpulse/internal/domain"
)

func v(val float64) domain.Value { return domain.Value{V: val, Available: true} }

func candlesRising(n int, start float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		o := start + float64(i)
		out[i] = domain.Candle{
			Open: o, High: o + 1, Low: o - 0.5, Close: o + 0.8,
			Volume: 1000, Final: true,
		}
	}
	return out
}

// TestEvaluate_AlwaysEmitsFourteenSignalsOnEmptyInput is the spec §8 partition invariant:
// sum(bullish+bearish+neutral) = 14 for any outlook, which requires Evaluate
// to always emit exactly fourteen readings regardless of input sufficiency.
func TestEvaluate_AlwaysEmitsFourteenSignalsOnEmptyInput(t *testing.T) {
	in := Input{Symbol: domain.NIFTY, Indicators: domain.Indicators{}}
	sigs := Evaluate(in)
	require.Len(t, sigs, 14)
	for _, s := range sigs {
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 100.0)
		assert.NotEmpty(t, s.StatusText)
	}
}

func TestEvaluate_ConfidenceAlwaysInBounds(t *testing.T) {
	ind := domain.Indicators{
		EMA20: v(110), EMA50: v(100), EMA100: v(95), EMA200: v(90),
		VWAP: v(105), VWMA20: v(103),
		RSI5m: v(80), RSI15m: v(70), ATR14: v(5),
		Pivots: domain.PivotLevels{
			Pivot: 100, R1: 105, R2: 110, R3: 115, S1: 95, S2: 90, S3: 85,
			CamH3: 108, CamH4: 112, CamL3: 92, CamL4: 88,
		},
		PivotsReady: true,
		ORB:         domain.ORB{High: 104, Low: 98, Available: true},
		MA20Volume:  v(900),
		OIDelta:     v(50), OIPercentChg: v(5),
		LastPrice: 106,
	}
	in := Input{
		Symbol:     domain.NIFTY,
		Indicators: ind,
		Candles1m:  candle.Snapshot{Finalized: candlesRising(20, 100), Partial: domain.Candle{Open: 119, High: 121, Low: 118, Close: 120, Volume: 1500}},
	}
	sigs := Evaluate(in)
	require.Len(t, sigs, 14)
	for _, s := range sigs {
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 100.0)
		assert.Contains(t, []domain.Direction{domain.DirBuy, domain.DirSell, domain.DirNeutral}, s.Direction)
	}
}

func TestTrendBase_BuyOnHigherLowsAbovEMA50(t *testing.T) {
	closed := []domain.Candle{
		{Low: 100}, {Low: 101}, {Low: 102},
	}
	in := Input{
		Indicators: domain.Indicators{EMA50: v(95), LastPrice: 103},
		Candles1m:  candle.Snapshot{Finalized: closed},
	}
	sig := trendBase(in)
	assert.Equal(t, domain.DirBuy, sig.Direction)
}

func TestTrendBase_NeutralWithoutEMA50(t *testing.T) {
	in := Input{Indicators: domain.Indicators{}, Candles1m: candle.Snapshot{}}
	sig := trendBase(in)
	assert.Equal(t, domain.DirNeutral, sig.Direction)
	assert.Equal(t, 50.0, sig.Confidence)
}

func TestVolumePulse_BuyOnElevatedVolumeUpCandle(t *testing.T) {
	in := Input{
		Indicators: domain.Indicators{MA20Volume: v(1000)},
		Candles1m:  candle.Snapshot{Finalized: []domain.Candle{{Open: 100, Close: 105, Volume: 1500}}},
	}
	sig := volumePulse(in)
	assert.Equal(t, domain.DirBuy, sig.Direction)
}

func TestVolumePulse_NeutralBelowThreshold(t *testing.T) {
	in := Input{
		Indicators: domain.Indicators{MA20Volume: v(1000)},
		Candles1m:  candle.Snapshot{Finalized: []domain.Candle{{Open: 100, Close: 105, Volume: 1100}}},
	}
	sig := volumePulse(in)
	assert.Equal(t, domain.DirNeutral, sig.Direction)
}

func TestRSI6040_BuyAboveThresholds(t *testing.T) {
	in := Input{Indicators: domain.Indicators{RSI5m: v(65), RSI15m: v(55)}}
	sig := rsi6040(in)
	assert.Equal(t, domain.DirBuy, sig.Direction)
}

func TestRSI6040_SellBelowThresholds(t *testing.T) {
	in := Input{Indicators: domain.Indicators{RSI5m: v(35), RSI15m: v(45)}}
	sig := rsi6040(in)
	assert.Equal(t, domain.DirSell, sig.Direction)
}

func TestOIMomentum_LongBuildUp(t *testing.T) {
	in := Input{
		Indicators: domain.Indicators{OIPercentChg: v(8)},
		Candles1m:  candle.Snapshot{Finalized: []domain.Candle{{Close: 100}, {Close: 105}}},
	}
	sig := oiMomentum(in)
	assert.Equal(t, domain.DirBuy, sig.Direction)
	assert.Contains(t, sig.StatusText, "long build-up")
}

func TestOIMomentum_ShortBuildUp(t *testing.T) {
	in := Input{
		Indicators: domain.Indicators{OIPercentChg: v(8)},
		Candles1m:  candle.Snapshot{Finalized: []domain.Candle{{Close: 105}, {Close: 100}}},
	}
	sig := oiMomentum(in)
	assert.Equal(t, domain.DirSell, sig.Direction)
	assert.Contains(t, sig.StatusText, "short build-up")
}

// TestAggregate_PartitionInvariant is the spec §8 universal invariant.
func TestAggregate_PartitionInvariant(t *testing.T) {
	sigs := Evaluate(Input{Indicators: domain.Indicators{}})
	o := Aggregate(domain.NIFTY, sigs, time.Now(), true)
	assert.Equal(t, 14, o.Bullish+o.Bearish+o.NeutralCount)
	assert.GreaterOrEqual(t, o.OverallConfidence, 0.0)
	assert.LessOrEqual(t, o.OverallConfidence, 100.0)
	assert.GreaterOrEqual(t, o.TrendPercent, -100.0)
	assert.LessOrEqual(t, o.TrendPercent, 100.0)
}

func TestAggregate_StrongBuyLabel(t *testing.T) {
	sigs := make([]domain.Signal, 14)
	for i := range sigs {
		dir := domain.DirBuy
		if i >= 13 {
			dir = domain.DirNeutral
		}
		sigs[i] = domain.Signal{Kind: domain.AllSignalKinds[i], Direction: dir, Confidence: 90}
	}
	o := Aggregate(domain.NIFTY, sigs, time.Now(), true)
	assert.Equal(t, domain.OutlookStrongBuy, o.Label)
	assert.Equal(t, 13, o.Bullish)
}

func TestAggregate_NeutralWhenBalanced(t *testing.T) {
	sigs := make([]domain.Signal, 14)
	for i := range sigs {
		dir := domain.DirBuy
		if i%2 == 1 {
			dir = domain.DirSell
		}
		sigs[i] = domain.Signal{Kind: domain.AllSignalKinds[i], Direction: dir, Confidence: 60}
	}
	o := Aggregate(domain.NIFTY, sigs, time.Now(), true)
	assert.Equal(t, domain.OutlookNeutral, o.Label)
}

func TestAggregate_TrendPercentFormula(t *testing.T) {
	sigs := make([]domain.Signal, 14)
	for i := range sigs {
		dir := domain.DirBuy
		if i >= 7 {
			dir = domain.DirSell
		}
		sigs[i] = domain.Signal{Kind: domain.AllSignalKinds[i], Direction: dir, Confidence: 50}
	}
	o := Aggregate(domain.NIFTY, sigs, time.Now(), true)
	// bull=7, bear=7: trend_percent = (7-7)/14*100 = 0.
	assert.Equal(t, 0.0, o.TrendPercent)
}

func TestAggregate_IsLivePropagates(t *testing.T) {
	o := Aggregate(domain.NIFTY, Evaluate(Input{}), time.Now(), false)
	assert.False(t, o.IsLive)
}

// TestAggregate_DeterministicUnderPermutedOrder is the spec §8 determinism
// property: permuting signal evaluation order yields an identical outlook.
func TestAggregate_DeterministicUnderPermutedOrder(t *testing.T) {
	sigs := Evaluate(Input{Indicators: domain.Indicators{RSI5m: v(70), RSI15m: v(60)}})
	now := time.Now()
	o1 := Aggregate(domain.NIFTY, sigs, now, true)

	reversed := make([]domain.Signal, len(sigs))
	for i, s := range sigs {
		reversed[len(sigs)-1-i] = s
	}
	o2 := Aggregate(domain.NIFTY, reversed, now, true)

	assert.Equal(t, o1.Bullish, o2.Bullish)
	assert.Equal(t, o1.Bearish, o2.Bearish)
	assert.Equal(t, o1.NeutralCount, o2.NeutralCount)
	assert.Equal(t, o1.OverallConfidence, o2.OverallConfidence)
	assert.Equal(t, o1.Label, o2.Label)
}
