package domain

import "time"

// Tick is one normalized market update. Not all fields are populated on every
// tick; the Candle Builder carries forward last-seen values for the rest.
type Tick struct {
	Symbol           Symbol    `json:"symbol"`
	Price            float64   `json:"price"`
	TS               time.Time `json:"ts"`
	LastTradedQty    int64     `json:"last_traded_qty"`
	CumulativeVolume int64     `json:"cumulative_volume"`
	OI               int64     `json:"oi"`
	PCR              *float64  `json:"pcr,omitempty"`
	DayOpen          float64   `json:"day_open"`
	DayHigh          float64   `json:"day_high"`
	DayLow           float64   `json:"day_low"`
	PrevClose        float64   `json:"prev_close"`
	Source           string    `json:"source"` // "ws" or "rest"
}

// Timeframe is one of the candle aggregation buckets this service maintains.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
)

// Candle is one OHLCV bucket for a symbol and timeframe. A finalized candle is
// immutable; only the currently-forming "partial" candle mutates.
type Candle struct {
	Symbol   Symbol    `json:"symbol"`
	TF       Timeframe `json:"timeframe"`
	OpenTS   time.Time `json:"open_ts"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	OIClose  int64     `json:"oi_close"`
	Final    bool      `json:"final"`
}

// PivotLevels holds classical and Camarilla support/resistance rails derived
// from the prior day's OHLC.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`

	CamH3 float64 `json:"cam_h3"`
	CamH4 float64 `json:"cam_h4"`
	CamL3 float64 `json:"cam_l3"`
	CamL4 float64 `json:"cam_l4"`
}

// ORB is the opening-range-breakout window, fixed once the first 15 minutes of
// the regular session close.
type ORB struct {
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	FixedAt   time.Time `json:"fixed_at"`
	Available bool      `json:"available"`
}

// Value wraps a computed scalar with an availability flag so that downstream
// aggregation can distinguish a genuine neutral reading from "no data yet".
type Value struct {
	V         float64 `json:"value"`
	Available bool    `json:"available"`
}

// Indicators is the flat per-symbol, per-evaluation indicator record.
type Indicators struct {
	Symbol    Symbol    `json:"symbol"`
	VersionTS time.Time `json:"version_ts"`

	EMA20  Value `json:"ema20"`
	EMA50  Value `json:"ema50"`
	EMA100 Value `json:"ema100"`
	EMA200 Value `json:"ema200"`

	VWAP   Value `json:"vwap"`
	VWMA20 Value `json:"vwma20"`

	RSI5m  Value `json:"rsi_5m"`
	RSI15m Value `json:"rsi_15m"`
	ATR14  Value `json:"atr14"`

	Pivots       PivotLevels `json:"pivots"`
	PivotsReady  bool        `json:"pivots_ready"`
	ORB          ORB         `json:"orb"`

	VolumeProfileBucket string `json:"volume_profile_bucket"`
	MA20Volume          Value  `json:"ma20_volume"`

	OIDelta       Value `json:"oi_delta"`
	OIPercentChg  Value `json:"oi_percent_change"`

	LastPrice  float64 `json:"last_price"`
	LastVolume int64   `json:"last_volume"`
}

// Direction is the tag every Signal and Decision carries.
type Direction string

const (
	DirBuy     Direction = "BUY"
	DirSell    Direction = "SELL"
	DirNeutral Direction = "NEUTRAL"
)

// SignalKind enumerates the fourteen canonical signals. The spec's 8-signal
// display is a remnant of an earlier document and is intentionally not modeled.
type SignalKind string

const (
	SignalTrendBase       SignalKind = "TREND_BASE"
	SignalVolumePulse     SignalKind = "VOLUME_PULSE"
	SignalCandleIntent    SignalKind = "CANDLE_INTENT"
	SignalPivotPoints     SignalKind = "PIVOT_POINTS"
	SignalORB             SignalKind = "ORB"
	SignalSuperTrend      SignalKind = "SUPERTREND"
	SignalParabolicSAR    SignalKind = "PARABOLIC_SAR"
	SignalRSI6040         SignalKind = "RSI_60_40"
	SignalCamarilla       SignalKind = "CAMARILLA"
	SignalVWMA20          SignalKind = "VWMA20"
	SignalHighVolumeScan  SignalKind = "HIGH_VOLUME_SCANNER"
	SignalSmartMoneyFlow  SignalKind = "SMART_MONEY_FLOW"
	SignalTradeZones      SignalKind = "TRADE_ZONES"
	SignalOIMomentum      SignalKind = "OI_MOMENTUM"
)

// AllSignalKinds lists the fourteen kinds in evaluation order. Order is cosmetic:
// the Signal Engine is deterministic regardless of evaluation order (spec §8).
var AllSignalKinds = []SignalKind{
	SignalTrendBase, SignalVolumePulse, SignalCandleIntent, SignalPivotPoints,
	SignalORB, SignalSuperTrend, SignalParabolicSAR, SignalRSI6040,
	SignalCamarilla, SignalVWMA20, SignalHighVolumeScan, SignalSmartMoneyFlow,
	SignalTradeZones, SignalOIMomentum,
}

// Signal is one scored, directional reading produced by the Signal Engine.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Direction  Direction  `json:"direction"`
	Confidence float64    `json:"confidence"` // 0..100
	StatusText string     `json:"status_text"`
}

// OutlookLabel is the aggregate label over the fourteen signals.
type OutlookLabel string

const (
	OutlookStrongBuy  OutlookLabel = "STRONG_BUY"
	OutlookBuy        OutlookLabel = "BUY"
	OutlookNeutral    OutlookLabel = "NEUTRAL"
	OutlookSell       OutlookLabel = "SELL"
	OutlookStrongSell OutlookLabel = "STRONG_SELL"
)

// Outlook aggregates the fourteen signals for a symbol at a point in time.
type Outlook struct {
	Symbol           Symbol       `json:"symbol"`
	VersionTS        time.Time    `json:"version_ts"`
	Signals          []Signal     `json:"signals"`
	Bullish          int          `json:"bullish"`
	Bearish          int          `json:"bearish"`
	NeutralCount     int          `json:"neutral"`
	OverallConfidence float64     `json:"overall_confidence"`
	TrendPercent     float64      `json:"trend_percent"`
	Label            OutlookLabel `json:"label"`
	IsLive           bool         `json:"is_live"`
}

// SessionState is the canonical market-hours state, driven solely by the IST
// wall clock, the holiday table, and the scheduler.
type SessionState string

const (
	SessionPreOpen    SessionState = "PRE_OPEN"
	SessionMarketOpen SessionState = "MARKET_OPEN"
	SessionAfterHours SessionState = "AFTER_HOURS"
	SessionClosed     SessionState = "CLOSED"
	SessionHoliday    SessionState = "HOLIDAY"
)

// Session is the scheduler's current view of the market clock.
type Session struct {
	State            SessionState `json:"state"`
	LastTransitionTS time.Time    `json:"last_transition_ts"`
	NextTransitionTS time.Time    `json:"next_transition_ts"`
}

// PCRSentiment classifies the put-call ratio reading.
type PCRSentiment string

const (
	PCRVeryBullish PCRSentiment = "VERY_BULLISH"
	PCRBullish     PCRSentiment = "BULLISH"
	PCRNeutral     PCRSentiment = "NEUTRAL"
	PCRBearish     PCRSentiment = "BEARISH"
	PCRVeryBearish PCRSentiment = "VERY_BEARISH"
)

// OIMomentumLabel classifies market-wide open-interest momentum.
type OIMomentumLabel string

const (
	OIMomentumStrongBuildUp OIMomentumLabel = "STRONG_BUILD_UP"
	OIMomentumBuildUp       OIMomentumLabel = "BUILD_UP"
	OIMomentumFlat          OIMomentumLabel = "FLAT"
	OIMomentumUnwind        OIMomentumLabel = "UNWIND"
	OIMomentumStrongUnwind  OIMomentumLabel = "STRONG_UNWIND"
)

// BreadthLabel classifies market-wide advance/decline breadth.
type BreadthLabel string

const (
	BreadthVeryStrong BreadthLabel = "VERY_STRONG"
	BreadthStrong     BreadthLabel = "STRONG"
	BreadthNeutral    BreadthLabel = "NEUTRAL"
	BreadthWeak       BreadthLabel = "WEAK"
	BreadthVeryWeak   BreadthLabel = "VERY_WEAK"
)

// VolatilityLevel classifies market-wide realized/implied volatility.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "LOW"
	VolatilityNormal VolatilityLevel = "NORMAL"
	VolatilityHigh   VolatilityLevel = "HIGH"
)

// MarketIndices is the market-wide adjustment context the Decision Engine
// combines with a symbol's Outlook.
type MarketIndices struct {
	PCRValue        float64         `json:"pcr_value"`
	PCRSentiment    PCRSentiment    `json:"pcr_sentiment"`
	OIMomentum      OIMomentumLabel `json:"oi_momentum"`
	BreadthADRatio  float64         `json:"breadth_ad_ratio"`
	BreadthLabel    BreadthLabel    `json:"breadth_label"`
	VolatilityPct   float64         `json:"volatility_pct"`
	VolatilityLevel VolatilityLevel `json:"volatility_level"`
	SessionState    SessionState    `json:"session_state"`
}

// DecisionAction is the final trader-facing action produced by the Decision Engine.
type DecisionAction string

const (
	ActionStrongBuy  DecisionAction = "STRONG_BUY"
	ActionBuy        DecisionAction = "BUY"
	ActionHold       DecisionAction = "HOLD"
	ActionWait       DecisionAction = "WAIT"
	ActionSell       DecisionAction = "SELL"
	ActionStrongSell DecisionAction = "STRONG_SELL"
)

// RiskLevel classifies the risk of acting on a Decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ScoreComponents exposes the base score plus every per-index adjustment that
// went into a Decision's final confidence, for auditability (spec §4.G).
type ScoreComponents struct {
	BaseConfidence  float64 `json:"base_confidence"`
	PCRAdjustment   float64 `json:"pcr_adjustment"`
	OIAdjustment    float64 `json:"oi_adjustment"`
	BreadthAdj      float64 `json:"breadth_adjustment"`
	VolatilityAdj   float64 `json:"volatility_adjustment"`
	FinalScore      float64 `json:"final_score"`
}

// TraderActions is the fixed-table-driven guidance attached to a Decision.
type TraderActions struct {
	EntrySetup        string `json:"entry_setup"`
	PositionManagement string `json:"position_management"`
	RiskManagement    string `json:"risk_management"`
	Timeframe         string `json:"timeframe"`
}

// Decision is the final trading decision for a symbol.
type Decision struct {
	Symbol          Symbol          `json:"symbol"`
	VersionTS       time.Time       `json:"version_ts"`
	Action          DecisionAction  `json:"action"`
	Confidence      float64         `json:"confidence"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	ScoreComponents ScoreComponents `json:"score_components"`
	TraderActions   TraderActions   `json:"trader_actions"`
	Monitor         []string        `json:"monitor"`
	IsLive          bool            `json:"is_live"`
}

// Snapshot is the authoritative last-known state for a symbol, the unit the
// Cache stores and the Fan-out Hub publishes on the "snapshot" topic.
type Snapshot struct {
	Symbol    Symbol     `json:"symbol"`
	TS        time.Time  `json:"ts"`
	Tick      Tick       `json:"tick"`
	Candle1m  Candle     `json:"candle_1m"`
	Indicators Indicators `json:"indicators"`
	Outlook   Outlook    `json:"outlook"`
	Decision  Decision   `json:"decision"`
	IsLive    bool       `json:"is_live"`
}
