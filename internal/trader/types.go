package trader

import (
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/market"
)

// TradeStyle partitions the budget between holding horizons
type TradeStyle string

const (
	StyleSwing TradeStyle = "swing"
	StyleDay   TradeStyle = "day"
)

// Candidate is one symbol the engine wants to buy, moving through the
// candidate state machine. All mutation goes through the Book.
type Candidate struct {
	Symbol   string
	Name     string
	Market   market.ID
	Exchange string
	Style    TradeStyle
	Status   CandidateStatus

	Score  int
	Risk   int
	Reason string

	PriceLocal float64 // latest observed price in local currency
	PriceKRW   float64
	FxRate     float64
	LotSize    int64
	BudgetKRW  float64 // budget committed by the allocator

	// Entry planning happens at most once per candidate lifetime
	Entry        *llm.EntryPlan
	EntryPlanned bool

	// Open-order bookkeeping
	OrderNo    string
	OrderQty   int64
	OrderPrice float64
	OrderedAt  time.Time

	// Position bookkeeping once filled
	AvgBuyPrice    float64
	FilledQty      int64
	FilledAt       time.Time
	HighSinceEntry float64

	AddedAt   time.Time
	UpdatedAt time.Time
}

// SpentKRW is the budget a candidate currently ties up: its committed
// budget while an order may still happen, zero once it is done.
func (c *Candidate) SpentKRW() float64 {
	switch c.Status {
	case CandSold, CandBlacklisted:
		return 0
	default:
		return c.BudgetKRW
	}
}

// Holding is one position from the broker balance merged with the
// engine's exit-planning state.
type Holding struct {
	Symbol   string
	Name     string
	Market   market.ID
	Exchange string
	Style    TradeStyle // budget style, inherited from the originating candidate when known
	Status   HoldingStatus

	Quantity     int64
	AvgBuyPrice  float64
	CurrentPrice float64
	ProfitPct    float64

	// Exit planning happens at most once per holding
	Exit        *llm.ExitPlan
	ExitPlanned bool

	Strategy  string // entry strategy that opened the position, if known
	FirstSeen time.Time
	UpdatedAt time.Time
}

// Trade is one completed order, recorded for accuracy tracking
type Trade struct {
	Symbol    string
	Market    market.ID
	Exchange  string
	Side      string // "buy" or "sell"
	Quantity  int64
	Price     float64
	AmountKRW float64
	Strategy  string
	Style     TradeStyle
	ProfitPct float64 // sells only
	At        time.Time
}
