package kis

// Stocks on the Tokyo, Shanghai, Shenzhen, and Hong Kong exchanges
// trade in board lots of 100 shares. Everything else trades single
// shares unless the product inquiry says otherwise.
var defaultLotSizes = map[string]int64{
	"TKSE": 100,
	"SHAA": 100,
	"SZAA": 100,
	"SEHK": 100,
}

// DefaultLotSize returns the assumed order unit for an exchange when
// the product inquiry is unavailable.
func DefaultLotSize(exchange string) int64 {
	if lot, ok := defaultLotSizes[exchange]; ok {
		return lot
	}
	return 1
}

// nyseSymbols covers the large NYSE listings the ranking endpoints
// commonly surface. US symbols not listed here order through NASD,
// which the broker accepts for cross-listed names.
var nyseSymbols = map[string]bool{
	"A": true, "ABBV": true, "ABT": true, "ACN": true, "AXP": true,
	"BA": true, "BAC": true, "BRK.B": true, "C": true, "CAT": true,
	"CRM": true, "CVX": true, "DIS": true, "F": true, "GE": true,
	"GM": true, "GS": true, "HD": true, "IBM": true, "JNJ": true,
	"JPM": true, "KO": true, "LLY": true, "MA": true, "MCD": true,
	"MMM": true, "MRK": true, "MS": true, "NEE": true, "NKE": true,
	"ORCL": true, "PFE": true, "PG": true, "PLTR": true, "RTX": true,
	"T": true, "TGT": true, "TSM": true, "UNH": true, "UPS": true,
	"V": true, "VZ": true, "WFC": true, "WMT": true, "XOM": true,
}

// USExchangeFor picks the broker exchange code for a US symbol
func USExchangeFor(symbol string) string {
	if nyseSymbols[symbol] {
		return "NYSE"
	}
	return "NASD"
}
