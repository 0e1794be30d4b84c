// Package indicators computes the base indicator record (spec §4.E) from the
// Candle Builder's ring snapshots. RSI and ATR follow the Wilder-smoothing
// recompute-over-window style of the teacher's internal/domain/indicators
// technical.go (CalculateRSI/CalculateATR), generalized to the candle type and
// to report via domain.Value's `available` flag instead of a bespoke IsValid
// field, per the spec's "available" sentinel requirement (spec §9).
package indicators

import "github.com/sawpanic/indexpulse/internal/domain"

// rsiFromCloses computes Wilder-smoothed RSI(period) over a run of closes,
// oldest first. Mirrors the teacher's CalculateRSI.
func rsiFromCloses(closes []float64, period int) domain.Value {
	if len(closes) < period+1 {
		return domain.Value{V: 50, Available: false}
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = avgGain*(1-alpha) + gains[i]*alpha
		avgLoss = avgLoss*(1-alpha) + losses[i]*alpha
	}

	if avgLoss == 0 {
		return domain.Value{V: 100, Available: true}
	}
	rs := avgGain / avgLoss
	return domain.Value{V: 100 - (100 / (1 + rs)), Available: true}
}

// atrFromCandles computes Wilder-smoothed ATR(period) over a run of candles,
// oldest first. Mirrors the teacher's CalculateATR.
func atrFromCandles(candles []domain.Candle, period int) domain.Value {
	if len(candles) < period+1 {
		return domain.Value{V: 0, Available: false}
	}

	trueRanges := make([]float64, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		hl := cur.High - cur.Low
		hc := absf(cur.High - prev.Close)
		lc := absf(cur.Low - prev.Close)
		trueRanges[i-1] = maxf(hl, maxf(hc, lc))
	}

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = atr*(1-alpha) + trueRanges[i]*alpha
	}
	return domain.Value{V: atr, Available: true}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
