package decision

import "github.com/sawpanic/indexpulse/internal/domain"

// actionKey indexes the fixed trader-actions table. The table is data, not
// code-branches, so that it stays testable as a flat fixture (spec §4.G).
type actionKey struct {
	action domain.DecisionAction
	risk   domain.RiskLevel
	vol    domain.VolatilityLevel
}

var actionsTable = map[actionKey]domain.TraderActions{}

func init() {
	for _, action := range []domain.DecisionAction{
		domain.ActionStrongBuy, domain.ActionBuy, domain.ActionHold,
		domain.ActionWait, domain.ActionSell, domain.ActionStrongSell,
	} {
		for _, risk := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh} {
			for _, vol := range []domain.VolatilityLevel{domain.VolatilityLow, domain.VolatilityNormal, domain.VolatilityHigh} {
				actionsTable[actionKey{action, risk, vol}] = buildActions(action, risk, vol)
			}
		}
	}
}

func buildActions(action domain.DecisionAction, risk domain.RiskLevel, vol domain.VolatilityLevel) domain.TraderActions {
	var entry, position, riskMgmt, timeframe string

	switch action {
	case domain.ActionStrongBuy, domain.ActionBuy:
		entry = "enter long on confirmation candle close above trigger level"
		position = "scale in, add on pullback to VWAP/EMA20 if trend holds"
	case domain.ActionStrongSell, domain.ActionSell:
		entry = "enter short on confirmation candle close below trigger level"
		position = "scale in, add on pullback to VWAP/EMA20 if trend holds"
	case domain.ActionHold:
		entry = "maintain existing exposure, no new entries"
		position = "hold with trailing stop at structure"
	default:
		entry = "stand aside, wait for a clearer signal"
		position = "no new positions"
	}

	switch risk {
	case domain.RiskLow:
		riskMgmt = "standard stop at ATR14 x 1.5"
	case domain.RiskMedium:
		riskMgmt = "reduced size, stop at ATR14 x 1.2"
	default:
		riskMgmt = "minimal size or skip, stop at ATR14 x 1.0"
	}

	switch vol {
	case domain.VolatilityHigh:
		timeframe = "favor 1m/5m for tighter management"
	case domain.VolatilityLow:
		timeframe = "favor 15m for a cleaner read"
	default:
		timeframe = "5m primary, 15m confirmation"
	}

	return domain.TraderActions{
		EntrySetup:         entry,
		PositionManagement: position,
		RiskManagement:     riskMgmt,
		Timeframe:          timeframe,
	}
}

func lookupActions(action domain.DecisionAction, risk domain.RiskLevel, vol domain.VolatilityLevel) domain.TraderActions {
	if ta, ok := actionsTable[actionKey{action, risk, vol}]; ok {
		return ta
	}
	return buildActions(action, risk, vol)
}
