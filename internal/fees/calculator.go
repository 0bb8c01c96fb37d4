package fees

// Schedule holds the commission and tax rates for one exchange.
// Rates are fractions of the trade amount, not percentages.
type Schedule struct {
	FeeRate float64
	MinFee  float64
	BuyTax  float64
	SellTax float64
}

// Domestic (KRX) rates: 0.015% commission each way, 0.18% transaction
// tax on sells only.
const (
	domesticFeeRate = 0.00015
	domesticSellTax = 0.0018
)

// overseasSchedules maps broker exchange codes to their fee schedules.
// Unknown exchanges fall back to the US schedule.
var overseasSchedules = map[string]Schedule{
	"US":   {FeeRate: 0.0025},
	"NASD": {FeeRate: 0.0025},
	"NYSE": {FeeRate: 0.0025},
	"AMEX": {FeeRate: 0.0025},
	"JP":   {FeeRate: 0.0023},
	"TKSE": {FeeRate: 0.0023},
	"HK":   {FeeRate: 0.003, BuyTax: 0.001085, SellTax: 0.001085},
	"SEHK": {FeeRate: 0.003, BuyTax: 0.001085, SellTax: 0.001085},
	"CN":   {FeeRate: 0.003, BuyTax: 0.0000841, SellTax: 0.0005841},
	"SHAA": {FeeRate: 0.003, BuyTax: 0.0000841, SellTax: 0.0005841},
	"SZAA": {FeeRate: 0.003, BuyTax: 0.0000841, SellTax: 0.0005841},
	"UK":   {FeeRate: 0.003, BuyTax: 0.005},
	"XLON": {FeeRate: 0.003, BuyTax: 0.005},
	"VN":   {FeeRate: 0.004, SellTax: 0.001},
	"HOSE": {FeeRate: 0.004, SellTax: 0.001},
	"HNX":  {FeeRate: 0.004, SellTax: 0.001},
}

var defaultSchedule = Schedule{FeeRate: 0.0025}

// ScheduleFor returns the fee schedule for an exchange code.
// "KRX" and the empty string mean the domestic market.
func ScheduleFor(exchange string) Schedule {
	if exchange == "" || exchange == "KRX" || exchange == "KR" {
		return Schedule{FeeRate: domesticFeeRate, SellTax: domesticSellTax}
	}
	if s, ok := overseasSchedules[exchange]; ok {
		return s
	}
	return defaultSchedule
}

// TradeCost is the fee breakdown for a single buy or sell
type TradeCost struct {
	Amount   float64
	Fee      float64
	Tax      float64
	Total    float64
	Net      float64 // amount minus costs for sells, amount plus costs for buys
	FeeRate  float64 // effective combined rate
	MinFeeOn bool
}

// BuyCost computes the cost of buying quantity shares at price
func BuyCost(price float64, quantity int64, exchange string) TradeCost {
	s := ScheduleFor(exchange)
	amount := price * float64(quantity)
	fee := amount * s.FeeRate
	minApplied := false
	if fee < s.MinFee {
		fee = s.MinFee
		minApplied = true
	}
	tax := amount * s.BuyTax
	total := fee + tax
	return TradeCost{
		Amount:   amount,
		Fee:      fee,
		Tax:      tax,
		Total:    total,
		Net:      amount + total,
		FeeRate:  rateOf(total, amount),
		MinFeeOn: minApplied,
	}
}

// SellCost computes the proceeds reduction of selling quantity shares at price
func SellCost(price float64, quantity int64, exchange string) TradeCost {
	s := ScheduleFor(exchange)
	amount := price * float64(quantity)
	fee := amount * s.FeeRate
	minApplied := false
	if fee < s.MinFee {
		fee = s.MinFee
		minApplied = true
	}
	tax := amount * s.SellTax
	total := fee + tax
	return TradeCost{
		Amount:   amount,
		Fee:      fee,
		Tax:      tax,
		Total:    total,
		Net:      amount - total,
		FeeRate:  rateOf(total, amount),
		MinFeeOn: minApplied,
	}
}

// ProfitReport is the full fee-aware outcome of a round trip
type ProfitReport struct {
	BuyCost        float64
	SellProceeds   float64
	TotalFees      float64
	GrossProfit    float64
	NetProfit      float64
	NetProfitRate  float64 // percent of buy amount
	BreakEvenPrice float64
	Profitable     bool
}

// NetProfit computes the round-trip outcome of buying at buyPrice and
// selling at sellPrice, with all commissions and taxes applied.
func NetProfit(buyPrice, sellPrice float64, quantity int64, exchange string) ProfitReport {
	buy := BuyCost(buyPrice, quantity, exchange)
	sell := SellCost(sellPrice, quantity, exchange)

	totalFees := buy.Total + sell.Total
	gross := sell.Amount - buy.Amount
	net := gross - totalFees

	report := ProfitReport{
		BuyCost:      buy.Amount,
		SellProceeds: sell.Amount,
		TotalFees:    totalFees,
		GrossProfit:  gross,
		NetProfit:    net,
		Profitable:   net > 0,
	}
	if buy.Amount > 0 {
		report.NetProfitRate = net / buy.Amount * 100
		report.BreakEvenPrice = buyPrice * (1 + totalFees/buy.Amount)
	}
	return report
}

// RoundTripRate returns the combined buy-plus-sell fee fraction for an
// exchange, used to brief the oracle on cost of trade.
func RoundTripRate(exchange string) float64 {
	s := ScheduleFor(exchange)
	return s.FeeRate*2 + s.BuyTax + s.SellTax
}

func rateOf(total, amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	return total / amount
}
