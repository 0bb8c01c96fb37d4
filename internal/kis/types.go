package kis

import (
	"time"

	"kis-trading-bot/internal/market"
)

// Quote is a live price snapshot for one symbol
type Quote struct {
	Symbol    string
	Exchange  string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Volume    int64
	ChangePct float64
	Time      time.Time
}

// Ranked is one row of a broker ranking (volume or price movers)
type Ranked struct {
	Symbol    string
	Name      string
	Exchange  string
	Price     float64
	ChangePct float64
	Volume    int64
}

// Position is one held lot reported by the balance inquiry
type Position struct {
	Symbol       string
	Name         string
	Market       market.ID
	Exchange     string
	Quantity     int64
	AvgBuyPrice  float64 // in local currency
	CurrentPrice float64
	EvalAmount   float64 // in KRW for domestic, local currency overseas
	ProfitPct    float64
}

// Balance is the account snapshot: cash plus all held positions
type Balance struct {
	CashKRW   float64
	Positions []Position
}

// CashSummary is the integrated-margin view of orderable cash
type CashSummary struct {
	KRWAvailable float64
	USDAvailable float64
	// TotalKRW is KRW plus USD converted at the margin inquiry's rate
	TotalKRW float64
}

// OrderSide distinguishes buys from sells
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderKind distinguishes market orders from limit orders
type OrderKind string

const (
	MarketOrder OrderKind = "market"
	LimitOrder  OrderKind = "limit"
)

// OrderRequest describes one order to submit
type OrderRequest struct {
	Market   market.ID
	Exchange string
	Symbol   string
	Side     OrderSide
	Kind     OrderKind
	Quantity int64
	Price    float64 // ignored for market orders
	ClientID string  // engine-side reference, not sent to the broker
}

// OrderResult is the broker's acknowledgement of a submitted order
type OrderResult struct {
	OrderNo     string
	OrderBranch string // KRX order office number, needed for cancels
	Time        time.Time
}

// PendingOrder is one unfilled order from the outstanding-orders inquiry
type PendingOrder struct {
	OrderNo     string
	OrderBranch string
	Market      market.ID
	Exchange    string
	Symbol      string
	Side        OrderSide
	Quantity    int64
	FilledQty   int64
	Price       float64
	OrderedAt   time.Time
}
