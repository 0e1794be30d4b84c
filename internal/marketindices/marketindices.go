// Package marketindices derives the market-wide adjustment context the
// Decision Engine combines with a symbol's Outlook (spec §4.G MarketIndices):
// PCR sentiment and OI momentum from option-chain reads, breadth across the
// three-symbol universe, and a volatility classification from ATR14.
// Grounded on the teacher's internal/regime/detector.go threshold-voting
// style (independent signals, each voting against a fixed threshold),
// adapted from its 4-hourly crypto regime classification into a synchronous
// per-evaluation read over this service's fixed NIFTY/BANKNIFTY/SENSEX
// universe.
package marketindices

import (
	"sync"

	"github.com/sawpanic/indexpulse/internal/domain"
	"github.com/sawpanic/indexpulse/internal/ingest"
)

// Engine carries the rolling state that spans evaluations: the last observed
// total open interest, needed to turn an absolute OI read into a momentum
// label.
type Engine struct {
	mu          sync.Mutex
	haveOI      bool
	lastTotalOI int64
}

// New creates an Engine with no prior OI baseline.
func New() *Engine {
	return &Engine{}
}

// Compute derives MarketIndices from the latest Indicators for every symbol
// in the universe and the latest option-chain read per symbol.
func (e *Engine) Compute(indicatorsBySymbol map[domain.Symbol]domain.Indicators, chains map[domain.Symbol][]ingest.OptionChainRow, session domain.SessionState) domain.MarketIndices {
	pcrValue, pcrSentiment := computePCR(chains)
	oiMomentum := e.computeOIMomentum(chains)
	breadthRatio, breadthLabel := computeBreadth(indicatorsBySymbol)
	volPct, volLevel := computeVolatility(indicatorsBySymbol)

	return domain.MarketIndices{
		PCRValue:        pcrValue,
		PCRSentiment:    pcrSentiment,
		OIMomentum:      oiMomentum,
		BreadthADRatio:  breadthRatio,
		BreadthLabel:    breadthLabel,
		VolatilityPct:   volPct,
		VolatilityLevel: volLevel,
		SessionState:    session,
	}
}

func totalOI(chains map[domain.Symbol][]ingest.OptionChainRow) (callOI, putOI int64) {
	for _, rows := range chains {
		for _, r := range rows {
			callOI += r.CallOI
			putOI += r.PutOI
		}
	}
	return callOI, putOI
}

// computePCR classifies the market-wide put-call ratio. A high PCR (more
// puts written than calls) is read as contrarian-bullish hedging pressure,
// the conventional options-desk interpretation.
func computePCR(chains map[domain.Symbol][]ingest.OptionChainRow) (float64, domain.PCRSentiment) {
	callOI, putOI := totalOI(chains)
	if callOI == 0 {
		return 0, domain.PCRNeutral
	}
	pcr := float64(putOI) / float64(callOI)
	switch {
	case pcr >= 1.5:
		return pcr, domain.PCRVeryBullish
	case pcr >= 1.2:
		return pcr, domain.PCRBullish
	case pcr <= 0.5:
		return pcr, domain.PCRVeryBearish
	case pcr <= 0.8:
		return pcr, domain.PCRBearish
	default:
		return pcr, domain.PCRNeutral
	}
}

func (e *Engine) computeOIMomentum(chains map[domain.Symbol][]ingest.OptionChainRow) domain.OIMomentumLabel {
	callOI, putOI := totalOI(chains)
	total := callOI + putOI
	if total == 0 {
		return domain.OIMomentumFlat
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.haveOI {
		e.haveOI = true
		e.lastTotalOI = total
		return domain.OIMomentumFlat
	}
	pctChange := 100 * float64(total-e.lastTotalOI) / float64(e.lastTotalOI)
	e.lastTotalOI = total

	switch {
	case pctChange >= 10:
		return domain.OIMomentumStrongBuildUp
	case pctChange >= 3:
		return domain.OIMomentumBuildUp
	case pctChange <= -10:
		return domain.OIMomentumStrongUnwind
	case pctChange <= -3:
		return domain.OIMomentumUnwind
	default:
		return domain.OIMomentumFlat
	}
}

// computeBreadth counts symbols trending up (EMA20 above EMA50) against
// symbols trending down, the same advance/decline-ratio shape as the
// teacher's breadth-above-20MA vote, generalized from percent-of-universe to
// a ratio since this universe has only three symbols.
func computeBreadth(bySymbol map[domain.Symbol]domain.Indicators) (float64, domain.BreadthLabel) {
	advancing, declining := 0, 0
	for _, ind := range bySymbol {
		if !ind.EMA20.Available || !ind.EMA50.Available {
			continue
		}
		if ind.EMA20.V > ind.EMA50.V {
			advancing++
		} else if ind.EMA20.V < ind.EMA50.V {
			declining++
		}
	}
	if declining == 0 {
		if advancing == 0 {
			return 1, domain.BreadthNeutral
		}
		return float64(advancing), domain.BreadthVeryStrong
	}
	ratio := float64(advancing) / float64(declining)
	switch {
	case ratio >= 2.5:
		return ratio, domain.BreadthVeryStrong
	case ratio >= 1.5:
		return ratio, domain.BreadthStrong
	case ratio <= 0.4:
		return ratio, domain.BreadthVeryWeak
	case ratio <= 0.67:
		return ratio, domain.BreadthWeak
	default:
		return ratio, domain.BreadthNeutral
	}
}

// computeVolatility averages ATR14 as a percentage of last price across the
// universe, the same realized-volatility threshold-vote shape as the
// teacher's regime detector.
func computeVolatility(bySymbol map[domain.Symbol]domain.Indicators) (float64, domain.VolatilityLevel) {
	sum, n := 0.0, 0
	for _, ind := range bySymbol {
		if !ind.ATR14.Available || ind.LastPrice <= 0 {
			continue
		}
		sum += 100 * ind.ATR14.V / ind.LastPrice
		n++
	}
	if n == 0 {
		return 0, domain.VolatilityNormal
	}
	avgPct := sum / float64(n)
	switch {
	case avgPct >= 1.5:
		return avgPct, domain.VolatilityHigh
	case avgPct <= 0.4:
		return avgPct, domain.VolatilityLow
	default:
		return avgPct, domain.VolatilityNormal
	}
}
