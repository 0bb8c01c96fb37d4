package marketdata

import (
	"testing"

	"kis-trading-bot/internal/market"
)

func TestYahooSymbol(t *testing.T) {
	tests := []struct {
		mkt      market.ID
		exchange string
		symbol   string
		want     string
	}{
		{market.KR, "KRX", "005930", "005930.KS"},
		{market.KR, "KRX", "247540", "247540.KQ"}, // KOSDAQ listing
		{market.KR, "KRX", "196170", "196170.KQ"},
		{market.JP, "TKSE", "7203", "7203.T"},
		{market.CN, "SHAA", "600519", "600519.SS"},
		{market.CN, "SZAA", "000858", "000858.SZ"},
		{market.HK, "SEHK", "700", "0700.HK"},
		{market.HK, "SEHK", "9988", "9988.HK"},
		{market.US, "NASD", "AAPL", "AAPL"},
	}
	for _, tt := range tests {
		if got := YahooSymbol(tt.mkt, tt.exchange, tt.symbol); got != tt.want {
			t.Errorf("YahooSymbol(%s, %s, %s) = %s, want %s", tt.mkt, tt.exchange, tt.symbol, got, tt.want)
		}
	}
}
