// Package signals implements the fourteen canonical signal functions and
// their aggregation into an Outlook (spec §4.F). Each signal is a pure
// function of (indicators, candle state, local market context); all fourteen
// always emit a reading, defaulting to NEUTRAL/50 with an explanatory
// status_text when inputs are insufficient, per the spec's `available`
// sentinel discipline (spec §9). Grounded on the teacher's composite-score
// style in internal/domain/indicators/technical.go (GetTechnicalScore),
// generalized from one blended score into fourteen independently named
// readings.
package signals

import (
	"fmt"
	"math"

	"github.com/sawpanic/indexpulse/internal/candle"
	"github.com/sawpanic/indexpulse/internal/domain"
)

const neutralConfidence = 50.0

func neutral(kind domain.SignalKind, why string) domain.Signal {
	return domain.Signal{Kind: kind, Direction: domain.DirNeutral, Confidence: neutralConfidence, StatusText: why}
}

func clampConfidence(c, cap float64) float64 {
	if c < 0 {
		c = 0
	}
	if c > cap {
		c = cap
	}
	return c
}

// Input bundles everything the fourteen signal functions read. It is built
// fresh per evaluation by the caller (never mutated by a signal function).
type Input struct {
	Symbol     domain.Symbol
	Indicators domain.Indicators
	Candles1m  candle.Snapshot
	Candles5m  candle.Snapshot
	Candles15m candle.Snapshot
}

// Evaluate runs all fourteen signal functions and returns them in the
// canonical order (domain.AllSignalKinds).
func Evaluate(in Input) []domain.Signal {
	fns := map[domain.SignalKind]func(Input) domain.Signal{
		domain.SignalTrendBase:      trendBase,
		domain.SignalVolumePulse:    volumePulse,
		domain.SignalCandleIntent:   candleIntent,
		domain.SignalPivotPoints:    pivotPoints,
		domain.SignalORB:            orb,
		domain.SignalSuperTrend:     superTrend,
		domain.SignalParabolicSAR:   parabolicSAR,
		domain.SignalRSI6040:        rsi6040,
		domain.SignalCamarilla:      camarilla,
		domain.SignalVWMA20:         vwma20,
		domain.SignalHighVolumeScan: highVolumeScanner,
		domain.SignalSmartMoneyFlow: smartMoneyFlow,
		domain.SignalTradeZones:     tradeZones,
		domain.SignalOIMomentum:     oiMomentum,
	}

	out := make([]domain.Signal, 0, len(domain.AllSignalKinds))
	for _, k := range domain.AllSignalKinds {
		out = append(out, fns[k](in))
	}
	return out
}

// 1. Trend Base: higher-lows with price above EMA50, or the bearish mirror.
func trendBase(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.EMA50.Available || len(closed) < 3 {
		return neutral(domain.SignalTrendBase, "insufficient candle history for trend base")
	}
	last3 := closed[len(closed)-3:]
	higherLows := last3[1].Low > last3[0].Low && last3[2].Low > last3[1].Low
	lowerHighs := last3[1].High < last3[0].High && last3[2].High < last3[1].High

	price := ind.LastPrice
	sep := 0.0
	if ind.EMA50.V != 0 {
		sep = math.Abs(price-ind.EMA50.V) / ind.EMA50.V * 100
	}
	conf := clampConfidence(sep*20, 95)

	switch {
	case higherLows && price > ind.EMA50.V:
		return domain.Signal{Kind: domain.SignalTrendBase, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "higher lows with price above EMA50"}
	case lowerHighs && price < ind.EMA50.V:
		return domain.Signal{Kind: domain.SignalTrendBase, Direction: domain.DirSell, Confidence: conf,
			StatusText: "lower highs with price below EMA50"}
	default:
		return neutral(domain.SignalTrendBase, "no clear trend structure against EMA50")
	}
}

// 2. Volume Pulse: follows candle direction when volume >= 1.3x MA20Volume.
func volumePulse(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.MA20Volume.Available || ind.MA20Volume.V <= 0 || len(closed) == 0 {
		return neutral(domain.SignalVolumePulse, "volume baseline not yet available")
	}
	last := closed[len(closed)-1]
	ratio := float64(last.Volume) / ind.MA20Volume.V
	if ratio < 1.3 {
		return neutral(domain.SignalVolumePulse, fmt.Sprintf("volume ratio %.2f below 1.3x threshold", ratio))
	}
	conf := clampConfidence(ratio*40, 75)
	if last.Close >= last.Open {
		return domain.Signal{Kind: domain.SignalVolumePulse, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "elevated volume on an up candle"}
	}
	return domain.Signal{Kind: domain.SignalVolumePulse, Direction: domain.DirSell, Confidence: conf,
		StatusText: "elevated volume on a down candle"}
}

// 3. Candle Intent: body/range ratio with close position within the range.
func candleIntent(in Input) domain.Signal {
	closed := in.Candles1m.Finalized
	if len(closed) == 0 {
		return neutral(domain.SignalCandleIntent, "no finalized candle yet")
	}
	c := closed[len(closed)-1]
	rng := c.High - c.Low
	if rng <= 0 {
		return neutral(domain.SignalCandleIntent, "zero-range candle")
	}
	body := math.Abs(c.Close - c.Open)
	bodyRatio := body / rng
	closePos := (c.Close - c.Low) / rng

	conf := clampConfidence(bodyRatio*90, 90)
	switch {
	case c.Close > c.Open && closePos > 0.65:
		return domain.Signal{Kind: domain.SignalCandleIntent, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "bullish candle closing near the high"}
	case c.Close < c.Open && closePos < 0.35:
		return domain.Signal{Kind: domain.SignalCandleIntent, Direction: domain.DirSell, Confidence: conf,
			StatusText: "bearish candle closing near the low"}
	default:
		return neutral(domain.SignalCandleIntent, "indecisive candle body/close position")
	}
}

// 4. Pivot Points: BUY near support levels, SELL near resistance levels.
func pivotPoints(in Input) domain.Signal {
	ind := in.Indicators
	if !ind.PivotsReady || ind.LastPrice == 0 {
		return neutral(domain.SignalPivotPoints, "prior-day pivots not available")
	}
	p := ind.Pivots
	price := ind.LastPrice

	type level struct {
		v   float64
		dir domain.Direction
	}
	levels := []level{
		{p.S1, domain.DirBuy}, {p.S2, domain.DirBuy}, {p.S3, domain.DirBuy},
		{p.R1, domain.DirSell}, {p.R2, domain.DirSell}, {p.R3, domain.DirSell},
	}
	best := -1.0
	var bestDir domain.Direction
	for _, l := range levels {
		if l.v == 0 {
			continue
		}
		proximity := 1 - math.Abs(price-l.v)/price
		if proximity > best {
			best = proximity
			bestDir = l.dir
		}
	}
	if best < 0.995 {
		return neutral(domain.SignalPivotPoints, "price not within range of a pivot level")
	}
	conf := clampConfidence((best-0.99)*8000, 80)
	return domain.Signal{Kind: domain.SignalPivotPoints, Direction: bestDir, Confidence: conf,
		StatusText: "price trading near a pivot support/resistance rail"}
}

// 5. ORB: break above/below the opening range with volume confirmation.
func orb(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.ORB.Available || len(closed) == 0 {
		return neutral(domain.SignalORB, "opening range not yet fixed")
	}
	last := closed[len(closed)-1]
	volSupport := 1.0
	if ind.MA20Volume.Available && ind.MA20Volume.V > 0 {
		volSupport = float64(last.Volume) / ind.MA20Volume.V
	}

	switch {
	case last.Close > ind.ORB.High:
		dist := (last.Close - ind.ORB.High) / ind.ORB.High * 100
		return domain.Signal{Kind: domain.SignalORB, Direction: domain.DirBuy,
			Confidence: clampConfidence(dist*30*volSupport, 85), StatusText: "breakout above opening range high"}
	case last.Close < ind.ORB.Low:
		dist := (ind.ORB.Low - last.Close) / ind.ORB.Low * 100
		return domain.Signal{Kind: domain.SignalORB, Direction: domain.DirSell,
			Confidence: clampConfidence(dist*30*volSupport, 85), StatusText: "breakdown below opening range low"}
	default:
		return neutral(domain.SignalORB, "price inside the opening range")
	}
}

// 6. SuperTrend(10,2): ATR-band trend following, BUY when the last close is
// above the upper band, SELL when below the lower band. The bands are the last
// candle's HL2 +- 2x the indicator record's ATR14 (the 15m ATR, not a 10-period
// ATR); the last 10 candles only feed the persistence-based confidence.
func superTrend(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.ATR14.Available || len(closed) < 10 {
		return neutral(domain.SignalSuperTrend, "insufficient data for SuperTrend(10,2) band")
	}
	window := closed[len(closed)-10:]
	hl2 := (window[len(window)-1].High + window[len(window)-1].Low) / 2
	upperBand := hl2 + 2*ind.ATR14.V
	lowerBand := hl2 - 2*ind.ATR14.V
	close := window[len(window)-1].Close

	persistence := 0
	for _, c := range window {
		if c.Close > lowerBand {
			persistence++
		}
	}
	conf := clampConfidence(float64(persistence)*9.8, 98)

	switch {
	case close > upperBand:
		return domain.Signal{Kind: domain.SignalSuperTrend, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "close above SuperTrend upper band"}
	case close < lowerBand:
		return domain.Signal{Kind: domain.SignalSuperTrend, Direction: domain.DirSell, Confidence: conf,
			StatusText: "close below SuperTrend lower band"}
	default:
		return neutral(domain.SignalSuperTrend, "close inside SuperTrend band")
	}
}

// 7. Parabolic SAR: no SAR value is computed. The side comes from the last
// five 1m closes: all non-decreasing is BUY, all non-increasing is SELL.
// Confidence is a fixed 70 and does not vary with time in trend.
func parabolicSAR(in Input) domain.Signal {
	closed := in.Candles1m.Finalized
	if len(closed) < 5 {
		return neutral(domain.SignalParabolicSAR, "insufficient candle history for Parabolic SAR")
	}
	window := closed[len(closed)-5:]
	up := true
	for i := 1; i < len(window); i++ {
		if window[i].Close < window[i-1].Close {
			up = false
			break
		}
	}
	down := true
	for i := 1; i < len(window); i++ {
		if window[i].Close > window[i-1].Close {
			down = false
			break
		}
	}
	switch {
	case up:
		return domain.Signal{Kind: domain.SignalParabolicSAR, Direction: domain.DirBuy, Confidence: 70,
			StatusText: "sustained upward close sequence"}
	case down:
		return domain.Signal{Kind: domain.SignalParabolicSAR, Direction: domain.DirSell, Confidence: 70,
			StatusText: "sustained downward close sequence"}
	default:
		return neutral(domain.SignalParabolicSAR, "no sustained directional close sequence")
	}
}

// 8. RSI 60/40: BUY if RSI5m>60 and RSI15m>50; SELL mirror with 40/50.
func rsi6040(in Input) domain.Signal {
	ind := in.Indicators
	if !ind.RSI5m.Available || !ind.RSI15m.Available {
		return neutral(domain.SignalRSI6040, "RSI not yet available on one or both timeframes")
	}
	switch {
	case ind.RSI5m.V > 60 && ind.RSI15m.V > 50:
		conf := clampConfidence((ind.RSI5m.V-50)*2.5, 95)
		return domain.Signal{Kind: domain.SignalRSI6040, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "RSI 5m above 60 confirmed by RSI 15m above 50"}
	case ind.RSI5m.V < 40 && ind.RSI15m.V < 50:
		conf := clampConfidence((50-ind.RSI5m.V)*2.5, 95)
		return domain.Signal{Kind: domain.SignalRSI6040, Direction: domain.DirSell, Confidence: conf,
			StatusText: "RSI 5m below 40 confirmed by RSI 15m below 50"}
	default:
		return neutral(domain.SignalRSI6040, "RSI readings do not clear the 60/40 thresholds")
	}
}

// 9. Camarilla: BUY on H3-H4 breakout, SELL on L3-L4 break.
func camarilla(in Input) domain.Signal {
	ind := in.Indicators
	if !ind.PivotsReady || ind.LastPrice == 0 {
		return neutral(domain.SignalCamarilla, "Camarilla levels not available")
	}
	price := ind.LastPrice
	p := ind.Pivots
	switch {
	case price > p.CamH3:
		dist := (price - p.CamH3) / p.CamH3 * 100
		return domain.Signal{Kind: domain.SignalCamarilla, Direction: domain.DirBuy,
			Confidence: clampConfidence(dist*40, 75), StatusText: "breakout above Camarilla H3"}
	case price < p.CamL3:
		dist := (p.CamL3 - price) / p.CamL3 * 100
		return domain.Signal{Kind: domain.SignalCamarilla, Direction: domain.DirSell,
			Confidence: clampConfidence(dist*40, 75), StatusText: "breakdown below Camarilla L3"}
	default:
		return neutral(domain.SignalCamarilla, "price between Camarilla L3 and H3")
	}
}

// 10. VWMA20: BUY if close above VWMA20 with supportive volume.
func vwma20(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.VWMA20.Available || len(closed) == 0 {
		return neutral(domain.SignalVWMA20, "VWMA20 not yet available")
	}
	last := closed[len(closed)-1]
	volSupportive := !ind.MA20Volume.Available || float64(last.Volume) >= ind.MA20Volume.V*0.8
	switch {
	case last.Close > ind.VWMA20.V && volSupportive:
		return domain.Signal{Kind: domain.SignalVWMA20, Direction: domain.DirBuy, Confidence: 65,
			StatusText: "close above VWMA20 with supportive volume"}
	case last.Close < ind.VWMA20.V && volSupportive:
		return domain.Signal{Kind: domain.SignalVWMA20, Direction: domain.DirSell, Confidence: 65,
			StatusText: "close below VWMA20 with supportive volume"}
	default:
		return neutral(domain.SignalVWMA20, "close near VWMA20 or volume unsupportive")
	}
}

// 11. High-Volume Scanner: anomaly direction follows candle, scored by a
// z-score proxy against the MA20Volume baseline.
func highVolumeScanner(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.MA20Volume.Available || ind.MA20Volume.V <= 0 || len(closed) == 0 {
		return neutral(domain.SignalHighVolumeScan, "volume baseline not yet available")
	}
	last := closed[len(closed)-1]
	z := (float64(last.Volume) - ind.MA20Volume.V) / ind.MA20Volume.V
	if z < 1.5 {
		return neutral(domain.SignalHighVolumeScan, "volume not a statistical anomaly")
	}
	conf := clampConfidence(z*25, 80)
	if last.Close >= last.Open {
		return domain.Signal{Kind: domain.SignalHighVolumeScan, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "anomalous volume on an up candle"}
	}
	return domain.Signal{Kind: domain.SignalHighVolumeScan, Direction: domain.DirSell, Confidence: conf,
		StatusText: "anomalous volume on a down candle"}
}

// 12. Smart Money Flow: accumulation/distribution proxy from close position
// within range weighted by volume across recent candles.
func smartMoneyFlow(in Input) domain.Signal {
	closed := in.Candles1m.Finalized
	if len(closed) < 10 {
		return neutral(domain.SignalSmartMoneyFlow, "insufficient history for accumulation/distribution test")
	}
	window := closed[len(closed)-10:]
	flow := 0.0
	for _, c := range window {
		rng := c.High - c.Low
		if rng <= 0 {
			continue
		}
		clv := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		flow += clv * float64(c.Volume)
	}
	switch {
	case flow > 0:
		conf := clampConfidence(math.Abs(flow)/1000, 85)
		return domain.Signal{Kind: domain.SignalSmartMoneyFlow, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "net accumulation over the recent window"}
	case flow < 0:
		conf := clampConfidence(math.Abs(flow)/1000, 85)
		return domain.Signal{Kind: domain.SignalSmartMoneyFlow, Direction: domain.DirSell, Confidence: conf,
			StatusText: "net distribution over the recent window"}
	default:
		return neutral(domain.SignalSmartMoneyFlow, "balanced accumulation/distribution flow")
	}
}

// 13. Trade Zones: BUY between S1-S2 (buy zone), SELL between R1-R2 (sell zone).
func tradeZones(in Input) domain.Signal {
	ind := in.Indicators
	if !ind.PivotsReady || ind.LastPrice == 0 {
		return neutral(domain.SignalTradeZones, "pivot-derived trade zones not available")
	}
	p := ind.Pivots
	price := ind.LastPrice
	switch {
	case price >= p.S2 && price <= p.S1:
		return domain.Signal{Kind: domain.SignalTradeZones, Direction: domain.DirBuy, Confidence: 80,
			StatusText: "price inside the S1-S2 buy zone"}
	case price >= p.R1 && price <= p.R2:
		return domain.Signal{Kind: domain.SignalTradeZones, Direction: domain.DirSell, Confidence: 80,
			StatusText: "price inside the R1-R2 sell zone"}
	default:
		return neutral(domain.SignalTradeZones, "price outside the defined trade zones")
	}
}

// 14. OI Momentum: direction from the (delta-OI, delta-price) quadrant table.
func oiMomentum(in Input) domain.Signal {
	ind := in.Indicators
	closed := in.Candles1m.Finalized
	if !ind.OIPercentChg.Available || len(closed) < 2 {
		return neutral(domain.SignalOIMomentum, "OI delta not yet available")
	}
	last := closed[len(closed)-1]
	prev := closed[len(closed)-2]
	priceUp := last.Close > prev.Close
	oiUp := ind.OIPercentChg.V > 0
	conf := clampConfidence(math.Abs(ind.OIPercentChg.V)*10, 95)

	switch {
	case priceUp && oiUp:
		return domain.Signal{Kind: domain.SignalOIMomentum, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "long build-up: price up with OI up"}
	case !priceUp && !oiUp:
		return domain.Signal{Kind: domain.SignalOIMomentum, Direction: domain.DirSell, Confidence: conf,
			StatusText: "long unwinding: price down with OI down"}
	case priceUp && !oiUp:
		return domain.Signal{Kind: domain.SignalOIMomentum, Direction: domain.DirBuy, Confidence: conf,
			StatusText: "short covering: price up with OI down"}
	default:
		return domain.Signal{Kind: domain.SignalOIMomentum, Direction: domain.DirSell, Confidence: conf,
			StatusText: "short build-up: price down with OI up"}
	}
}
