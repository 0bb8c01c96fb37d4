package trader

import (
	"fmt"
	"time"
)

// ExitRules are the rule-based exits applied to filled positions, in
// priority order: hard stop, trailing stop, then time-bucketed ROI.
type ExitRules struct {
	HardStopPct         float64 // e.g. -5: sell at -5% unconditionally
	TrailingActivatePct float64 // profit from entry that arms the trail
	TrailingOffsetPct   float64 // retracement from the high that fires it
}

// roiBucket pairs a holding age with the profit that justifies taking
// it. Short holds demand more; past the last bucket its target applies.
type roiBucket struct {
	within time.Duration
	target float64 // percent
}

var roiBuckets = []roiBucket{
	{30 * time.Minute, 5.0},
	{60 * time.Minute, 3.0},
	{120 * time.Minute, 1.5},
	{240 * time.Minute, 0.5},
}

// ExitCheck is the verdict of evaluating the exit rules
type ExitCheck struct {
	Sell   bool
	Rule   string // "hard_stop", "trailing_stop", "time_roi"
	Detail string
}

// Evaluate runs the exit rules against a position snapshot
func (r ExitRules) Evaluate(avgBuy, current, highSinceEntry float64, held time.Duration) ExitCheck {
	if avgBuy <= 0 || current <= 0 {
		return ExitCheck{}
	}

	profitPct := (current - avgBuy) / avgBuy * 100

	if profitPct <= r.HardStopPct {
		return ExitCheck{
			Sell:   true,
			Rule:   "hard_stop",
			Detail: fmt.Sprintf("%.2f%% <= %.2f%%", profitPct, r.HardStopPct),
		}
	}

	if highSinceEntry > avgBuy {
		peakPct := (highSinceEntry - avgBuy) / avgBuy * 100
		if peakPct >= r.TrailingActivatePct {
			retracePct := (highSinceEntry - current) / highSinceEntry * 100
			if retracePct >= r.TrailingOffsetPct {
				return ExitCheck{
					Sell: true,
					Rule: "trailing_stop",
					Detail: fmt.Sprintf("peak +%.2f%%, retraced %.2f%% from %.4f",
						peakPct, retracePct, highSinceEntry),
				}
			}
		}
	}

	target := roiBuckets[len(roiBuckets)-1].target
	for _, bucket := range roiBuckets {
		if held <= bucket.within {
			target = bucket.target
			break
		}
	}
	if profitPct >= target {
		return ExitCheck{
			Sell:   true,
			Rule:   "time_roi",
			Detail: fmt.Sprintf("+%.2f%% after %s meets %.1f%% target", profitPct, held.Round(time.Minute), target),
		}
	}

	return ExitCheck{}
}
