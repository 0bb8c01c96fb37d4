package trader

import (
	"context"
	"fmt"
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
)

// EntryOracle plans entries for screened candidates
type EntryOracle interface {
	PlanEntry(ctx context.Context, req llm.EntryRequest) (*llm.EntryPlan, error)
}

// MarketClock answers whether a market is in session. Satisfied by
// *market.Clock.
type MarketClock interface {
	IsOpen(id market.ID, t time.Time) bool
}

// Recorder persists completed trades
type Recorder interface {
	RecordTrade(ctx context.Context, t Trade) error
}

// Notifier announces executed trades
type Notifier interface {
	TradeExecuted(ctx context.Context, t Trade)
}

// CandidateTracker drives the candidate state machine on a fixed tick:
// entry planning, trigger checks, order submission, and rule-based
// exits for filled positions.
type CandidateTracker struct {
	book     *Book
	broker   kis.Broker
	oracle   EntryOracle
	clock    MarketClock
	gates    settings.Store
	recorder Recorder
	notifier Notifier
	rules    ExitRules

	tick              time.Duration
	deviationLimitPct float64
	logger            *logging.Logger
}

// TrackerConfig wires a CandidateTracker
type TrackerConfig struct {
	Book              *Book
	Broker            kis.Broker
	Oracle            EntryOracle
	Clock             MarketClock
	Gates             settings.Store
	Recorder          Recorder
	Notifier          Notifier
	Rules             ExitRules
	Tick              time.Duration
	DeviationLimitPct float64
}

// NewCandidateTracker builds the tracker
func NewCandidateTracker(cfg TrackerConfig) *CandidateTracker {
	tick := cfg.Tick
	if tick <= 0 {
		tick = 5 * time.Second
	}
	return &CandidateTracker{
		book:              cfg.Book,
		broker:            cfg.Broker,
		oracle:            cfg.Oracle,
		clock:             cfg.Clock,
		gates:             cfg.Gates,
		recorder:          cfg.Recorder,
		notifier:          cfg.Notifier,
		rules:             cfg.Rules,
		tick:              tick,
		deviationLimitPct: cfg.DeviationLimitPct,
		logger:            logging.WithComponent("candidate-tracker"),
	}
}

// Run ticks until the context is cancelled
func (t *CandidateTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	t.logger.Info("candidate tracker started", "tick", t.tick.String())
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("candidate tracker stopped")
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick processes every candidate once. Exported so tests can drive the
// tracker without the timer.
func (t *CandidateTracker) Tick(ctx context.Context) {
	t.resolvePendingFills(ctx)

	for _, c := range t.book.Candidates() {
		if ctx.Err() != nil {
			return
		}
		switch c.Status {
		case CandWatching:
			t.watchCandidate(ctx, c)
		case CandFilled:
			t.manageFilled(ctx, c)
		}
	}
}

func (t *CandidateTracker) watchCandidate(ctx context.Context, c Candidate) {
	if !t.clock.IsOpen(c.Market, time.Now()) {
		t.logger.Info("dropping candidate, market closed", "symbol", c.Symbol, "market", string(c.Market))
		t.book.Drop(c.Symbol)
		return
	}

	quote, err := t.broker.Quote(ctx, c.Market, c.Exchange, c.Symbol)
	if err != nil {
		t.logger.Warn("quote failed", "symbol", c.Symbol, "error", err)
		return
	}
	t.book.Update(c.Symbol, func(cand *Candidate) {
		cand.PriceLocal = quote.Price
		cand.PriceKRW = quote.Price * cand.FxRate
	})

	if !c.EntryPlanned {
		t.planEntry(ctx, c)
		return
	}
	if c.Entry == nil {
		return
	}

	if triggered(c.Entry, quote.Price) {
		if !t.gates.Enabled(ctx, settings.AutoBuy) {
			t.logger.Info("entry triggered but auto-buy is off", "symbol", c.Symbol, "price", quote.Price)
			return
		}
		t.executeBuy(ctx, c)
	}
}

func triggered(plan *llm.EntryPlan, price float64) bool {
	switch plan.Strategy {
	case "breakout":
		return price >= plan.TriggerPrice
	case "pullback":
		return price <= plan.TriggerPrice
	default:
		return false
	}
}

// planEntry makes the one-per-lifetime entry prediction
func (t *CandidateTracker) planEntry(ctx context.Context, c Candidate) {
	if err := t.book.Transition(c.Symbol, CandAnalyzing); err != nil {
		return
	}

	plan, err := t.oracle.PlanEntry(ctx, llm.EntryRequest{
		Symbol: c.Symbol,
		Market: string(c.Market),
		Price:  c.PriceLocal,
		Score:  c.Score,
		Style:  string(c.Style),
	})
	if err != nil {
		// No plan was made, so the one-per-lifetime budget is not spent;
		// the next tick tries again.
		t.logger.Warn("entry planning failed, will retry", "symbol", c.Symbol, "error", err)
		t.book.Transition(c.Symbol, CandWatching)
		return
	}

	t.book.TransitionWith(c.Symbol, CandWatching, func(cand *Candidate) {
		cand.Entry = plan
		cand.EntryPlanned = true
		if plan.Risk > 0 {
			cand.Risk = plan.Risk
		}
	})
	t.logger.Info("entry planned",
		"symbol", c.Symbol, "strategy", plan.Strategy, "trigger", plan.TriggerPrice, "confidence", plan.Confidence)
}

// executeBuy re-validates the price, sizes the position, and submits
// the order.
func (t *CandidateTracker) executeBuy(ctx context.Context, c Candidate) {
	if err := t.book.Transition(c.Symbol, CandAnalyzing); err != nil {
		return
	}

	// Fresh-quote guard: the order must trade near the planned entry,
	// not wherever the price ran off to since the plan was made.
	fresh, err := t.broker.Quote(ctx, c.Market, c.Exchange, c.Symbol)
	if err != nil {
		t.logger.Warn("pre-order quote failed", "symbol", c.Symbol, "error", err)
		t.book.Transition(c.Symbol, CandWatching)
		return
	}
	deviation := pctDiff(fresh.Price, c.Entry.TriggerPrice)
	if deviation > t.deviationLimitPct {
		t.logger.Error("price deviation too large, aborting order",
			"symbol", c.Symbol, "trigger", c.Entry.TriggerPrice, "fresh", fresh.Price, "deviation_pct", deviation)
		t.book.Transition(c.Symbol, CandWatching)
		return
	}

	_, remaining := t.book.BudgetFor(c.Style)
	spend := remaining * RiskFraction(c.Risk)
	if spend < c.BudgetKRW {
		spend = c.BudgetKRW
	}
	if spend > remaining+c.BudgetKRW {
		spend = remaining + c.BudgetKRW
	}
	priceKRW := fresh.Price * c.FxRate
	qty := PositionSize(spend, priceKRW, c.LotSize)
	if qty <= 0 {
		t.logger.Warn("budget too small for one lot",
			"symbol", c.Symbol, "budget_krw", spend, "lot_cost_krw", priceKRW*float64(c.LotSize))
		t.book.Transition(c.Symbol, CandWatching)
		return
	}

	req := kis.OrderRequest{
		Market:   c.Market,
		Exchange: c.Exchange,
		Symbol:   c.Symbol,
		Side:     kis.Buy,
		Quantity: qty,
		Price:    fresh.Price,
	}
	if c.Market == market.KR {
		req.Kind = kis.MarketOrder
	} else {
		req.Kind = kis.LimitOrder
	}

	if err := t.book.Transition(c.Symbol, CandOrdering); err != nil {
		return
	}

	result, err := t.broker.PlaceOrder(ctx, req)
	if err != nil {
		if kis.IsPermanent(err) {
			t.logger.Error("permanent order rejection, blacklisting", "symbol", c.Symbol, "error", err)
			t.book.Blacklist(c.Symbol, err.Error())
			return
		}
		t.logger.Warn("order failed, will retry on a later trigger", "symbol", c.Symbol, "error", err)
		t.book.Transition(c.Symbol, CandWatching)
		return
	}

	if c.Market == market.KR {
		// Domestic market orders fill immediately
		t.book.TransitionWith(c.Symbol, CandFilled, func(cand *Candidate) {
			cand.OrderNo = result.OrderNo
			cand.OrderQty = qty
			cand.OrderPrice = fresh.Price
			cand.OrderedAt = time.Now()
			cand.AvgBuyPrice = fresh.Price
			cand.FilledQty = qty
			cand.FilledAt = time.Now()
			cand.HighSinceEntry = fresh.Price
		})
		t.recordAndNotify(ctx, c, kis.Buy, qty, fresh.Price, 0)
		return
	}

	t.book.TransitionWith(c.Symbol, CandPending, func(cand *Candidate) {
		cand.OrderNo = result.OrderNo
		cand.OrderQty = qty
		cand.OrderPrice = fresh.Price
		cand.OrderedAt = time.Now()
	})
	t.logger.Info("limit order resting",
		"symbol", c.Symbol, "qty", qty, "price", fresh.Price, "order_no", result.OrderNo)
}

// resolvePendingFills promotes pending candidates whose orders are no
// longer outstanding at the broker.
func (t *CandidateTracker) resolvePendingFills(ctx context.Context) {
	pending := t.book.CandidatesIn(CandPending)
	if len(pending) == 0 {
		return
	}

	open, err := t.broker.PendingOrders(ctx)
	if err != nil {
		t.logger.Warn("pending order inquiry failed", "error", err)
		return
	}
	outstanding := make(map[string]bool, len(open))
	for _, o := range open {
		outstanding[o.OrderNo] = true
	}

	for _, c := range pending {
		if outstanding[c.OrderNo] {
			continue
		}
		// The reaper may have reverted this candidate concurrently; the
		// transition check makes promotion a no-op in that case.
		err := t.book.TransitionWith(c.Symbol, CandFilled, func(cand *Candidate) {
			cand.AvgBuyPrice = cand.OrderPrice
			cand.FilledQty = cand.OrderQty
			cand.FilledAt = time.Now()
			cand.HighSinceEntry = cand.OrderPrice
		})
		if err == nil {
			t.logger.Info("limit order filled", "symbol", c.Symbol, "order_no", c.OrderNo)
			t.recordAndNotify(ctx, c, kis.Buy, c.OrderQty, c.OrderPrice, 0)
		}
	}
}

// manageFilled applies the rule-based exits to an open position
func (t *CandidateTracker) manageFilled(ctx context.Context, c Candidate) {
	quote, err := t.broker.Quote(ctx, c.Market, c.Exchange, c.Symbol)
	if err != nil {
		t.logger.Warn("quote failed for filled position", "symbol", c.Symbol, "error", err)
		return
	}

	high := c.HighSinceEntry
	if quote.Price > high {
		high = quote.Price
	}
	t.book.Update(c.Symbol, func(cand *Candidate) {
		cand.PriceLocal = quote.Price
		cand.PriceKRW = quote.Price * cand.FxRate
		cand.HighSinceEntry = high
	})

	check := t.rules.Evaluate(c.AvgBuyPrice, quote.Price, high, time.Since(c.FilledAt))
	if !check.Sell {
		return
	}
	if !t.gates.Enabled(ctx, settings.AutoSell) {
		t.logger.Info("exit rule met but auto-sell is off",
			"symbol", c.Symbol, "rule", check.Rule, "detail", check.Detail)
		return
	}

	req := kis.OrderRequest{
		Market:   c.Market,
		Exchange: c.Exchange,
		Symbol:   c.Symbol,
		Side:     kis.Sell,
		Quantity: c.FilledQty,
		Price:    quote.Price,
	}
	if c.Market == market.KR {
		req.Kind = kis.MarketOrder
	} else {
		req.Kind = kis.LimitOrder
	}

	if _, err := t.broker.PlaceOrder(ctx, req); err != nil {
		t.logger.Error("exit order failed", "symbol", c.Symbol, "rule", check.Rule, "error", err)
		return
	}

	profitPct := pctChange(c.AvgBuyPrice, quote.Price)
	t.book.Transition(c.Symbol, CandSold)
	t.logger.Info("position closed",
		"symbol", c.Symbol, "rule", check.Rule, "detail", check.Detail, "profit_pct", fmt.Sprintf("%.2f", profitPct))
	t.recordAndNotify(ctx, c, kis.Sell, c.FilledQty, quote.Price, profitPct)
}

func (t *CandidateTracker) recordAndNotify(ctx context.Context, c Candidate, side kis.OrderSide, qty int64, price, profitPct float64) {
	strategy := ""
	if c.Entry != nil {
		strategy = c.Entry.Strategy
	}
	trade := Trade{
		Symbol:    c.Symbol,
		Market:    c.Market,
		Exchange:  c.Exchange,
		Side:      string(side),
		Quantity:  qty,
		Price:     price,
		AmountKRW: price * c.FxRate * float64(qty),
		Strategy:  strategy,
		Style:     c.Style,
		ProfitPct: profitPct,
		At:        time.Now(),
	}
	if t.recorder != nil {
		if err := t.recorder.RecordTrade(ctx, trade); err != nil {
			t.logger.Warn("trade record failed", "symbol", c.Symbol, "error", err)
		}
	}
	if t.notifier != nil {
		t.notifier.TradeExecuted(ctx, trade)
	}
}

func pctDiff(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	d := (a - b) / b * 100
	if d < 0 {
		return -d
	}
	return d
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
