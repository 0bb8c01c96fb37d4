package trader

import (
	"context"
	"errors"
	"testing"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
)

type stubExitOracle struct {
	plan  *llm.ExitPlan
	err   error
	calls int
}

func (o *stubExitOracle) PlanExit(_ context.Context, _ llm.ExitRequest) (*llm.ExitPlan, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.plan, nil
}

type memStats struct {
	strategy  string
	win       bool
	profitPct float64
	calls     int
}

func (s *memStats) RecordStrategyResult(_ context.Context, strategy string, win bool, profitPct float64) error {
	s.calls++
	s.strategy = strategy
	s.win = win
	s.profitPct = profitPct
	return nil
}

func newHoldingsTestTracker(book *Book, broker kis.Broker, oracle ExitOracle, gates settings.Store, rec *memRecorder, stats *memStats) *HoldingsTracker {
	cfg := HoldingsConfig{
		Book:   book,
		Broker: broker,
		Oracle: oracle,
		Gates:  gates,
	}
	// A nil *memRecorder or *memStats stored in the interface field
	// would still compare non-nil; only assign real implementations.
	if rec != nil {
		cfg.Recorder = rec
	}
	if stats != nil {
		cfg.Stats = stats
	}
	return NewHoldingsTracker(cfg)
}

func hkPosition(price float64) kis.Position {
	return kis.Position{
		Symbol: "0700", Name: "Tencent", Market: market.HK, Exchange: "SEHK",
		Quantity: 100, AvgBuyPrice: 100, CurrentPrice: price,
	}
}

func TestBalanceSyncAdoptsAndPlansNewHoldings(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Held = []kis.Position{hkPosition(101)}

	oracle := &stubExitOracle{plan: &llm.ExitPlan{TargetPrice: 110, StopPrice: 95}}
	tracker := newHoldingsTestTracker(book, broker, oracle, allGatesOpen(), nil, nil)

	tracker.Tick(context.Background())

	h, ok := book.Holding("0700")
	if !ok {
		t.Fatal("balance position should be adopted as a holding")
	}
	if !h.ExitPlanned || h.Exit == nil || h.Exit.TargetPrice != 110 {
		t.Errorf("exit plan not stored: %+v", h)
	}

	// The plan is made once; later ticks only evaluate
	tracker.Tick(context.Background())
	if oracle.calls != 1 {
		t.Errorf("oracle called %d times, want 1", oracle.calls)
	}
}

func TestExitPlanFailureIsRetried(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Held = []kis.Position{hkPosition(101)}

	oracle := &stubExitOracle{err: errors.New("model unavailable")}
	tracker := newHoldingsTestTracker(book, broker, oracle, allGatesOpen(), nil, nil)

	tracker.Tick(context.Background())
	h, _ := book.Holding("0700")
	if h.ExitPlanned || h.Status != HoldWatching {
		t.Fatalf("failed plan should leave holding watching and unplanned: %+v", h)
	}

	// A real position cannot stay unmanaged: the next tick tries again
	oracle.err = nil
	oracle.plan = &llm.ExitPlan{TargetPrice: 110, StopPrice: 95}
	tracker.Tick(context.Background())

	h, _ = book.Holding("0700")
	if !h.ExitPlanned {
		t.Error("retry should have planned the exit")
	}
	if oracle.calls != 2 {
		t.Errorf("oracle called %d times, want 2", oracle.calls)
	}
}

func TestTargetHitButFeesEatProfitHolds(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	// +0.5% on SEHK does not cover the ~0.8% round-trip fees
	broker.Held = []kis.Position{hkPosition(100.5)}

	oracle := &stubExitOracle{plan: &llm.ExitPlan{TargetPrice: 100.4, StopPrice: 95}}
	tracker := newHoldingsTestTracker(book, broker, oracle, allGatesOpen(), nil, nil)

	tracker.Tick(context.Background()) // plan
	tracker.Tick(context.Background()) // evaluate

	if len(broker.PlacedOrders) != 0 {
		t.Fatalf("sold at a net loss: %+v", broker.PlacedOrders)
	}
	h, _ := book.Holding("0700")
	if h.Status != HoldWatching {
		t.Errorf("status = %s, want watching", h.Status)
	}

	// At +3% the same target clears the fees and the sale goes through
	broker.Held = []kis.Position{hkPosition(103)}
	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 1 || broker.PlacedOrders[0].Side != kis.Sell {
		t.Fatalf("orders = %+v, want one sell", broker.PlacedOrders)
	}
	h, _ = book.Holding("0700")
	if h.Status != HoldSold {
		t.Errorf("status = %s, want sold", h.Status)
	}
}

func TestStopLossSellsRegardlessOfFees(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Held = []kis.Position{hkPosition(94)}
	rec := &memRecorder{}

	oracle := &stubExitOracle{plan: &llm.ExitPlan{TargetPrice: 110, StopPrice: 95}}
	tracker := newHoldingsTestTracker(book, broker, oracle, allGatesOpen(), rec, nil)

	tracker.Tick(context.Background()) // plan
	tracker.Tick(context.Background()) // evaluate

	if len(broker.PlacedOrders) != 1 || broker.PlacedOrders[0].Side != kis.Sell {
		t.Fatalf("orders = %+v, want one sell", broker.PlacedOrders)
	}
	if len(rec.trades) != 1 || rec.trades[0].ProfitPct >= 0 {
		t.Errorf("trades = %+v, want one losing sell", rec.trades)
	}
}

func TestSellRecordsStrategyStats(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Held = []kis.Position{hkPosition(94)}
	stats := &memStats{}

	oracle := &stubExitOracle{plan: &llm.ExitPlan{TargetPrice: 110, StopPrice: 95}}
	tracker := newHoldingsTestTracker(book, broker, oracle, allGatesOpen(), nil, stats)

	tracker.Tick(context.Background()) // plan
	book.UpdateHolding("0700", func(h *Holding) { h.Strategy = "breakout" })
	tracker.Tick(context.Background()) // stop loss fires

	if stats.calls != 1 {
		t.Fatalf("stats recorded %d times, want 1", stats.calls)
	}
	if stats.strategy != "breakout" || stats.win {
		t.Errorf("stats = %+v, want breakout loss", stats)
	}
}

func TestAutoSellGateBlocksHoldingSale(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Held = []kis.Position{hkPosition(94)}

	gates := settings.NewMemory(map[string]bool{settings.AutoSell: false})
	oracle := &stubExitOracle{plan: &llm.ExitPlan{TargetPrice: 110, StopPrice: 95}}
	tracker := newHoldingsTestTracker(book, broker, oracle, gates, nil, nil)

	tracker.Tick(context.Background()) // plan
	tracker.Tick(context.Background()) // stop condition met, gate closed

	if len(broker.PlacedOrders) != 0 {
		t.Error("auto-sell off must not place orders")
	}
	h, _ := book.Holding("0700")
	if h.Status != HoldWatching {
		t.Errorf("status = %s, want watching", h.Status)
	}
}

func TestAdoptedHoldingInheritsCandidateStyle(t *testing.T) {
	book := NewBook(0.5, 0.5)
	addWatching(t, book, &Candidate{
		Symbol: "AAPL", Market: market.US, Style: StyleSwing, BudgetKRW: 100_000,
		Entry: &llm.EntryPlan{Strategy: "pullback"},
	})

	book.SyncHoldings([]Holding{{Symbol: "AAPL", Market: market.US, Quantity: 3, AvgBuyPrice: 50}})

	h, ok := book.Holding("AAPL")
	if !ok {
		t.Fatal("position should be adopted")
	}
	if h.Style != StyleSwing || h.Strategy != "pullback" {
		t.Errorf("holding = %+v, want swing style and pullback strategy from the candidate", h)
	}

	// The symbol still counts once: the candidate commitment covers it
	snap := book.Ledger()
	if snap.Committed[StyleSwing] != 1 {
		t.Errorf("swing committed = %d, want 1", snap.Committed[StyleSwing])
	}
}

func TestVanishedPositionIsDroppedUnlessSelling(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SyncHoldings([]Holding{
		{Symbol: "KEEP", Market: market.KR},
		{Symbol: "GONE", Market: market.KR},
	})
	book.TransitionHolding("KEEP", HoldAnalyzing)
	book.TransitionHolding("KEEP", HoldSelling)

	book.SyncHoldings(nil)

	if _, ok := book.Holding("GONE"); ok {
		t.Error("position gone from the balance should be dropped")
	}
	if h, ok := book.Holding("KEEP"); !ok || h.Status != HoldSelling {
		t.Error("mid-sale holding must survive a balance sync gap")
	}
}
