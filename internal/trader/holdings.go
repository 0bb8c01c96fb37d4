package trader

import (
	"context"
	"fmt"
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/fees"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
)

// ExitOracle plans exits for held positions
type ExitOracle interface {
	PlanExit(ctx context.Context, req llm.ExitRequest) (*llm.ExitPlan, error)
}

// StatsRecorder accumulates per-strategy win/loss statistics
type StatsRecorder interface {
	RecordStrategyResult(ctx context.Context, strategy string, win bool, profitPct float64) error
}

// HoldingsTracker reconciles the broker balance with tracked exit
// state and sells when the oracle's plan says so. Take-profits are
// fee-aware: a target hit that nets a loss after fees is a hold.
type HoldingsTracker struct {
	book     *Book
	broker   kis.Broker
	oracle   ExitOracle
	gates    settings.Store
	recorder Recorder
	stats    StatsRecorder
	notifier Notifier

	tick   time.Duration
	logger *logging.Logger
}

// HoldingsConfig wires a HoldingsTracker
type HoldingsConfig struct {
	Book     *Book
	Broker   kis.Broker
	Oracle   ExitOracle
	Gates    settings.Store
	Recorder Recorder
	Stats    StatsRecorder
	Notifier Notifier
	Tick     time.Duration
}

// NewHoldingsTracker builds the tracker
func NewHoldingsTracker(cfg HoldingsConfig) *HoldingsTracker {
	tick := cfg.Tick
	if tick <= 0 {
		tick = 10 * time.Second
	}
	return &HoldingsTracker{
		book:     cfg.Book,
		broker:   cfg.Broker,
		oracle:   cfg.Oracle,
		gates:    cfg.Gates,
		recorder: cfg.Recorder,
		stats:    cfg.Stats,
		notifier: cfg.Notifier,
		tick:     tick,
		logger:   logging.WithComponent("holdings-tracker"),
	}
}

// Run ticks until the context is cancelled
func (t *HoldingsTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	t.logger.Info("holdings tracker started", "tick", t.tick.String())
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("holdings tracker stopped")
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick reconciles the balance and evaluates exits once
func (t *HoldingsTracker) Tick(ctx context.Context) {
	bal, err := t.broker.Balance(ctx)
	if err != nil {
		t.logger.Warn("balance inquiry failed", "error", err)
		return
	}

	fresh := make([]Holding, 0, len(bal.Positions))
	for _, p := range bal.Positions {
		fresh = append(fresh, Holding{
			Symbol:       p.Symbol,
			Name:         p.Name,
			Market:       p.Market,
			Exchange:     p.Exchange,
			Quantity:     p.Quantity,
			AvgBuyPrice:  p.AvgBuyPrice,
			CurrentPrice: p.CurrentPrice,
			ProfitPct:    p.ProfitPct,
		})
	}
	t.book.SyncHoldings(fresh)

	for _, h := range t.book.Holdings() {
		if ctx.Err() != nil {
			return
		}
		if h.Status != HoldWatching {
			continue
		}
		if !h.ExitPlanned {
			t.planExit(ctx, h)
			continue
		}
		t.evaluate(ctx, h)
	}
}

// planExit makes the exit prediction for a new holding. Failures are
// retried next tick: a real position cannot be left unmanaged.
func (t *HoldingsTracker) planExit(ctx context.Context, h Holding) {
	if err := t.book.TransitionHolding(h.Symbol, HoldAnalyzing); err != nil {
		return
	}

	plan, err := t.oracle.PlanExit(ctx, llm.ExitRequest{
		Symbol:      h.Symbol,
		Market:      string(h.Market),
		AvgBuyPrice: h.AvgBuyPrice,
		Price:       h.CurrentPrice,
		FeeRate:     fees.RoundTripRate(h.Exchange),
		HeldFor:     time.Since(h.FirstSeen).Round(time.Minute).String(),
	})
	if err != nil {
		t.logger.Warn("exit planning failed, will retry", "symbol", h.Symbol, "error", err)
		t.book.TransitionHolding(h.Symbol, HoldWatching)
		return
	}

	t.book.TransitionHolding(h.Symbol, HoldWatching)
	t.book.UpdateHolding(h.Symbol, func(hold *Holding) {
		hold.Exit = plan
		hold.ExitPlanned = true
	})
	t.logger.Info("exit planned",
		"symbol", h.Symbol, "target", plan.TargetPrice, "stop", plan.StopPrice)
}

// evaluate checks the holding against its exit plan
func (t *HoldingsTracker) evaluate(ctx context.Context, h Holding) {
	if h.Exit == nil || h.CurrentPrice <= 0 {
		return
	}

	if h.CurrentPrice <= h.Exit.StopPrice {
		t.sell(ctx, h, "stop_loss")
		return
	}

	if h.CurrentPrice >= h.Exit.TargetPrice {
		report := fees.NetProfit(h.AvgBuyPrice, h.CurrentPrice, h.Quantity, h.Exchange)
		if !report.Profitable {
			t.logger.Info("target hit but fees eat the profit, holding",
				"symbol", h.Symbol, "price", h.CurrentPrice,
				"break_even", fmt.Sprintf("%.4f", report.BreakEvenPrice))
			return
		}
		t.sell(ctx, h, "take_profit")
	}
}

func (t *HoldingsTracker) sell(ctx context.Context, h Holding, reason string) {
	if !t.gates.Enabled(ctx, settings.AutoSell) {
		t.logger.Info("exit condition met but auto-sell is off", "symbol", h.Symbol, "reason", reason)
		return
	}

	if err := t.book.TransitionHolding(h.Symbol, HoldAnalyzing); err != nil {
		return
	}
	if err := t.book.TransitionHolding(h.Symbol, HoldSelling); err != nil {
		return
	}

	req := kis.OrderRequest{
		Market:   h.Market,
		Exchange: h.Exchange,
		Symbol:   h.Symbol,
		Side:     kis.Sell,
		Quantity: h.Quantity,
		Price:    h.CurrentPrice,
	}
	if h.Market == market.KR {
		req.Kind = kis.MarketOrder
	} else {
		req.Kind = kis.LimitOrder
	}

	if _, err := t.broker.PlaceOrder(ctx, req); err != nil {
		t.logger.Error("sell order failed", "symbol", h.Symbol, "reason", reason, "error", err)
		t.book.TransitionHolding(h.Symbol, HoldWatching)
		return
	}

	profitPct := pctChange(h.AvgBuyPrice, h.CurrentPrice)
	t.book.TransitionHolding(h.Symbol, HoldSold)
	t.logger.Info("holding sold",
		"symbol", h.Symbol, "reason", reason, "profit_pct", fmt.Sprintf("%.2f", profitPct))

	trade := Trade{
		Symbol:    h.Symbol,
		Market:    h.Market,
		Exchange:  h.Exchange,
		Side:      string(kis.Sell),
		Quantity:  h.Quantity,
		Price:     h.CurrentPrice,
		Strategy:  h.Strategy,
		Style:     h.Style,
		ProfitPct: profitPct,
		At:        time.Now(),
	}
	if t.recorder != nil {
		if err := t.recorder.RecordTrade(ctx, trade); err != nil {
			t.logger.Warn("trade record failed", "symbol", h.Symbol, "error", err)
		}
	}
	if t.stats != nil && h.Strategy != "" {
		if err := t.stats.RecordStrategyResult(ctx, h.Strategy, profitPct > 0, profitPct); err != nil {
			t.logger.Warn("strategy stats update failed", "strategy", h.Strategy, "error", err)
		}
	}
	if t.notifier != nil {
		t.notifier.TradeExecuted(ctx, trade)
	}
}
