package signals

import (
	"math"
	"time"

	"github.com/sawpanic/indexpulse/internal/domain"
)

// Aggregate combines fourteen signals into an Outlook, per spec §4.F. isLive
// propagates the Ingest Supervisor's feed health so that downstream consumers
// never mistake a stale-feed outlook for a genuine reading.
func Aggregate(sym domain.Symbol, sigs []domain.Signal, now time.Time, isLive bool) domain.Outlook {
	var bull, bear, neu int
	sumConf := 0.0
	for _, s := range sigs {
		sumConf += s.Confidence
		switch s.Direction {
		case domain.DirBuy:
			bull++
		case domain.DirSell:
			bear++
		default:
			neu++
		}
	}

	overall := 0.0
	if len(sigs) > 0 {
		overall = sumConf / float64(len(sigs))
	}
	trendPct := math.Round((float64(bull-bear)/14*100)*10) / 10

	label := domain.OutlookNeutral
	switch {
	case bull-bear > 3 && overall > 70:
		label = domain.OutlookStrongBuy
	case bull > bear:
		label = domain.OutlookBuy
	case bear-bull > 3 && overall > 70:
		label = domain.OutlookStrongSell
	case bear > bull:
		label = domain.OutlookSell
	}

	return domain.Outlook{
		Symbol:            sym,
		VersionTS:         now,
		Signals:           sigs,
		Bullish:           bull,
		Bearish:           bear,
		NeutralCount:      neu,
		OverallConfidence: overall,
		TrendPercent:      trendPct,
		Label:             label,
		IsLive:            isLive,
	}
}
