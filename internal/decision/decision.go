// Package decision implements the Decision Engine (spec §4.G): it combines a
// symbol's Outlook with the broader MarketIndices into per-index adjustments,
// a final clipped score, an action/risk mapping, and fixed-table trader
// actions. Grounded on the teacher's weighted-adjustment composite scoring in
// internal/domain/indicators/technical.go (GetTechnicalScore's additive,
// capped-contribution style), adapted from a single blended score into the
// spec's named, auditable ScoreComponents.
package decision

import "github.com/sawpanic/indexpulse/internal/domain"

func pcrAdjustment(s domain.PCRSentiment) float64 {
	switch s {
	case domain.PCRVeryBullish:
		return 15
	case domain.PCRBullish:
		return 10
	case domain.PCRBearish:
		return -10
	case domain.PCRVeryBearish:
		return -15
	default:
		return 0
	}
}

// oiAdjustment applies a build-up/unwind adjustment in the outlook's trend
// direction. trendSign is +1 for a bullish outlook, -1 for bearish, 0 neutral.
func oiAdjustment(m domain.OIMomentumLabel, trendSign int) float64 {
	switch m {
	case domain.OIMomentumStrongBuildUp:
		return 10 * float64(trendSign)
	case domain.OIMomentumStrongUnwind:
		return -5 * float64(trendSign)
	default:
		return 0
	}
}

func breadthAdjustment(b domain.BreadthLabel) float64 {
	switch b {
	case domain.BreadthVeryStrong:
		return 8
	case domain.BreadthStrong:
		return 4
	case domain.BreadthWeak:
		return -4
	case domain.BreadthVeryWeak:
		return -8
	default:
		return 0
	}
}

func volatilityAdjustment(v domain.VolatilityLevel) float64 {
	switch v {
	case domain.VolatilityHigh:
		return -10
	case domain.VolatilityLow:
		return -5
	default:
		return 0
	}
}

func trendSign(o domain.Outlook) int {
	switch {
	case o.Bullish > o.Bearish:
		return 1
	case o.Bearish > o.Bullish:
		return -1
	default:
		return 0
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Evaluate computes the final Decision for a symbol from its Outlook and the
// broader MarketIndices context. The Decision's IsLive mirrors the outlook's.
func Evaluate(o domain.Outlook, m domain.MarketIndices) domain.Decision {
	dPCR := pcrAdjustment(m.PCRSentiment)
	dOI := oiAdjustment(m.OIMomentum, trendSign(o))
	dBreadth := breadthAdjustment(m.BreadthLabel)
	dVol := volatilityAdjustment(m.VolatilityLevel)

	base := o.OverallConfidence
	finalScore := clip(base+0.30*dPCR+0.30*dOI+0.20*dVol+0.20*dBreadth, 0, 100)

	components := domain.ScoreComponents{
		BaseConfidence: base,
		PCRAdjustment:  dPCR,
		OIAdjustment:   dOI,
		BreadthAdj:     dBreadth,
		VolatilityAdj:  dVol,
		FinalScore:     finalScore,
	}

	if m.SessionState != domain.SessionMarketOpen {
		return domain.Decision{
			Symbol: o.Symbol, VersionTS: o.VersionTS,
			Action: domain.ActionWait, Confidence: 50, RiskLevel: domain.RiskMedium,
			ScoreComponents: components,
			TraderActions:   lookupActions(domain.ActionWait, domain.RiskMedium, m.VolatilityLevel),
			Monitor:         defaultMonitor(o.Symbol),
			IsLive:          o.IsLive,
		}
	}

	action := mapAction(finalScore, trendSign(o))
	risk := mapRisk(finalScore, m.VolatilityLevel)

	return domain.Decision{
		Symbol: o.Symbol, VersionTS: o.VersionTS,
		Action: action, Confidence: finalScore, RiskLevel: risk,
		ScoreComponents: components,
		TraderActions:   lookupActions(action, risk, m.VolatilityLevel),
		Monitor:         defaultMonitor(o.Symbol),
		IsLive:          o.IsLive,
	}
}

func mapAction(s float64, trend int) domain.DecisionAction {
	if trend >= 0 {
		switch {
		case s >= 80:
			return domain.ActionStrongBuy
		case s >= 65:
			return domain.ActionBuy
		case s >= 50:
			return domain.ActionHold
		case s >= 35:
			return domain.ActionWait
		default:
			return domain.ActionSell
		}
	}
	switch {
	case s >= 80:
		return domain.ActionStrongSell
	case s >= 65:
		return domain.ActionSell
	case s >= 50:
		return domain.ActionHold
	case s >= 35:
		return domain.ActionWait
	default:
		return domain.ActionStrongSell
	}
}

func mapRisk(s float64, vol domain.VolatilityLevel) domain.RiskLevel {
	risk := domain.RiskMedium
	switch {
	case s >= 75 || s <= 25:
		risk = domain.RiskLow
	case s >= 55 || s <= 45:
		risk = domain.RiskMedium
	default:
		risk = domain.RiskHigh
	}
	if vol == domain.VolatilityHigh {
		if risk == domain.RiskLow {
			return domain.RiskMedium
		}
		return domain.RiskHigh
	}
	return risk
}

func defaultMonitor(sym domain.Symbol) []string {
	return []string{"oi_momentum", "pcr_value", "breadth_ad_ratio"}
}
