package scanner

import (
	"context"
	"time"

	"kis-trading-bot/internal/market"
)

// TargetSource records where a scan target came from
type TargetSource string

const (
	SourceRanking   TargetSource = "ranking"
	SourceWatchlist TargetSource = "watchlist"
	SourceScreener  TargetSource = "screener"
)

// Target is one symbol queued for analysis in a scan cycle
type Target struct {
	Symbol   string
	Name     string
	Market   market.ID
	Exchange string
	Price    float64 // local currency, zero when unknown
	Source   TargetSource
}

// TargetResult is the recorded outcome of one analyzed target: the
// oracle's verdict, or "error" when screening failed.
type TargetResult struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name,omitempty"`
	Action string  `json:"action"`
	Score  int     `json:"score,omitempty"`
	Risk   int     `json:"risk,omitempty"`
	Style  string  `json:"style,omitempty"`
	Price  float64 `json:"price,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Cycle is the persisted record of one per-market scan pass
type Cycle struct {
	ID         string
	Market     market.ID
	StartedAt  time.Time
	FinishedAt time.Time
	Targets    int
	Analyzed   int
	Candidates int
	Selected   int
	Results    []TargetResult
}

// CycleStore persists scan cycles so a restart can resume the cadence
// instead of immediately rescanning.
type CycleStore interface {
	SaveCycle(ctx context.Context, c Cycle) error
	LatestCycle(ctx context.Context) (*Cycle, error)
}

// HintSource supplies strategy performance summaries for the screening
// prompt, typically backed by the strategy stats table.
type HintSource interface {
	StrategyHints(ctx context.Context) []string
}

// HeadlineSource supplies recent news headlines per market for the
// off-market sentiment refresh.
type HeadlineSource interface {
	Headlines(ctx context.Context, mkt market.ID) []string
}

// RateSource converts local currency to KRW
type RateSource interface {
	Rate(ctx context.Context, mkt market.ID) float64
}
