package analysis

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); !almostEqual(got, 3, 1e-9) {
		t.Errorf("SMA(5) = %f, want 3", got)
	}
	if got := SMA(closes, 2); !almostEqual(got, 4.5, 1e-9) {
		t.Errorf("SMA(2) = %f, want 4.5", got)
	}
	if got := SMA(closes, 10); got != 0 {
		t.Errorf("SMA with short data = %f, want 0", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	if got := RSI(rising, 14); got != 100 {
		t.Errorf("RSI of monotone rise = %f, want 100", got)
	}

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	if got := RSI(falling, 14); got >= 1 {
		t.Errorf("RSI of monotone fall = %f, want near 0", got)
	}

	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("RSI with short data = %f, want neutral 50", got)
	}
}

func TestBollingerBandsBracketMiddle(t *testing.T) {
	closes := []float64{10, 11, 9, 12, 8, 13, 10, 11, 9, 12, 10, 11, 9, 12, 10, 11, 9, 12, 10, 11}
	upper, middle, lower := Bollinger(closes, 20, 2)
	if !(lower < middle && middle < upper) {
		t.Errorf("bands out of order: %f %f %f", lower, middle, upper)
	}
	if !almostEqual(middle, SMA(closes, 20), 1e-9) {
		t.Errorf("middle band %f != SMA %f", middle, SMA(closes, 20))
	}
}

func TestVolumeRatio(t *testing.T) {
	volumes := []float64{100, 100, 100, 100, 300}
	if got := VolumeRatio(volumes, 4); !almostEqual(got, 3, 1e-9) {
		t.Errorf("VolumeRatio = %f, want 3", got)
	}
	if got := VolumeRatio([]float64{50}, 20); got != 1 {
		t.Errorf("VolumeRatio single = %f, want 1", got)
	}
}

func TestTrendLabel(t *testing.T) {
	tests := []struct {
		ma5, ma20, ma60 float64
		want            string
	}{
		{12, 11, 10, "uptrend"},
		{10, 11, 12, "downtrend"},
		{11, 12, 10, "sideways"},
		{12, 11, 0, "uptrend"},
		{0, 11, 10, "unknown"},
	}
	for _, tt := range tests {
		if got := TrendLabel(tt.ma5, tt.ma20, tt.ma60); got != tt.want {
			t.Errorf("TrendLabel(%f,%f,%f) = %s, want %s", tt.ma5, tt.ma20, tt.ma60, got, tt.want)
		}
	}
}

func TestSummarizeUsesLatestClose(t *testing.T) {
	closes := make([]float64, 60)
	volumes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
		volumes[i] = 1000
	}
	s := Summarize(closes, volumes)
	if s.Close != closes[59] {
		t.Errorf("Close = %f, want %f", s.Close, closes[59])
	}
	if s.Trend != "uptrend" {
		t.Errorf("Trend = %s, want uptrend", s.Trend)
	}
	if s.MA5 <= s.MA20 || s.MA20 <= s.MA60 {
		t.Error("moving averages should be stacked for a steady rise")
	}
}
