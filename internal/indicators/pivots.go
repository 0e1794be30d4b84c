package indicators

import "github.com/sawpanic/indexpulse/internal/domain"

// PriorDayOHLC is the prior session's settled bar, supplied externally (e.g.
// from the broker adapter's OHLC fetch, spec §1) since the candle ring itself
// does not retain a full prior day once past 1m retention.
type PriorDayOHLC struct {
	Open, High, Low, Close float64
	Available              bool
}

// classicalPivots computes the standard pivot/R/S ladder from prior-day OHLC.
func classicalPivots(prior PriorDayOHLC) (domain.PivotLevels, bool) {
	if !prior.Available {
		return domain.PivotLevels{}, false
	}
	h, l, c := prior.High, prior.Low, prior.Close
	p := (h + l + c) / 3

	levels := domain.PivotLevels{
		Pivot: p,
		R1:    2*p - l,
		S1:    2*p - h,
		R2:    p + (h - l),
		S2:    p - (h - l),
		R3:    h + 2*(p-l),
		S3:    l - 2*(h-p),

		CamH3: c + (h-l)*1.1/4,
		CamH4: c + (h-l)*1.1/2,
		CamL3: c - (h-l)*1.1/4,
		CamL4: c - (h-l)*1.1/2,
	}
	return levels, true
}
