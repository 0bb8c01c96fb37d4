package analysis

import "math"

// Summary condenses one timeframe's candles into the figures the
// decision oracle is briefed with.
type Summary struct {
	Close       float64 `json:"close"`
	RSI14       float64 `json:"rsi14"`
	MA5         float64 `json:"ma5"`
	MA20        float64 `json:"ma20"`
	MA60        float64 `json:"ma60"`
	BollUpper   float64 `json:"boll_upper"`
	BollMiddle  float64 `json:"boll_middle"`
	BollLower   float64 `json:"boll_lower"`
	VolumeRatio float64 `json:"volume_ratio"`
	Trend       string  `json:"trend"`
}

// Summarize computes the standard indicator set over closing prices and
// volumes ordered oldest first.
func Summarize(closes []float64, volumes []float64) Summary {
	s := Summary{
		RSI14:       RSI(closes, 14),
		MA5:         SMA(closes, 5),
		MA20:        SMA(closes, 20),
		MA60:        SMA(closes, 60),
		VolumeRatio: VolumeRatio(volumes, 20),
	}
	if len(closes) > 0 {
		s.Close = closes[len(closes)-1]
	}
	s.BollUpper, s.BollMiddle, s.BollLower = Bollinger(closes, 20, 2)
	s.Trend = TrendLabel(s.MA5, s.MA20, s.MA60)
	return s
}

// RSI computes Wilder's relative strength index over the given period.
// Returns 50 when there is not enough data to say anything.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// SMA computes the simple moving average of the last period closes.
// Returns 0 when there is not enough data.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	var sum float64
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// EMA computes the exponential moving average of the last period closes
func EMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	ema := SMA(closes[:period], period)
	for _, c := range closes[period:] {
		ema = (c-ema)*multiplier + ema
	}
	return ema
}

// Bollinger returns the upper, middle, and lower bands over the given
// period with k standard deviations.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower float64) {
	if len(closes) < period {
		return 0, 0, 0
	}
	middle = SMA(closes, period)
	var variance float64
	for _, c := range closes[len(closes)-period:] {
		d := c - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))
	return middle + k*std, middle, middle - k*std
}

// VolumeRatio compares the latest volume against the average of the
// preceding period. 1.0 means in line with recent activity.
func VolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < 2 {
		return 1
	}
	n := period
	if n > len(volumes)-1 {
		n = len(volumes) - 1
	}
	var sum float64
	for _, v := range volumes[len(volumes)-1-n : len(volumes)-1] {
		sum += v
	}
	avg := sum / float64(n)
	if avg == 0 {
		return 1
	}
	return volumes[len(volumes)-1] / avg
}

// TrendLabel classifies the moving-average stack. A missing longer
// average (zero) degrades to the shorter pair.
func TrendLabel(ma5, ma20, ma60 float64) string {
	if ma5 == 0 || ma20 == 0 {
		return "unknown"
	}
	if ma60 == 0 {
		switch {
		case ma5 > ma20:
			return "uptrend"
		case ma5 < ma20:
			return "downtrend"
		default:
			return "sideways"
		}
	}
	switch {
	case ma5 > ma20 && ma20 > ma60:
		return "uptrend"
	case ma5 < ma20 && ma20 < ma60:
		return "downtrend"
	default:
		return "sideways"
	}
}
