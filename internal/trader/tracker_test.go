package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
)

type openClock struct{}

func (openClock) IsOpen(market.ID, time.Time) bool { return true }

type closedClock struct{}

func (closedClock) IsOpen(market.ID, time.Time) bool { return false }

type stubEntryOracle struct {
	plan  *llm.EntryPlan
	err   error
	calls int
}

func (o *stubEntryOracle) PlanEntry(_ context.Context, _ llm.EntryRequest) (*llm.EntryPlan, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.plan, nil
}

type memRecorder struct {
	trades []Trade
}

func (r *memRecorder) RecordTrade(_ context.Context, t Trade) error {
	r.trades = append(r.trades, t)
	return nil
}

func allGatesOpen() settings.Store {
	return settings.NewMemory(map[string]bool{
		settings.AutoBuy:  true,
		settings.AutoSell: true,
	})
}

func newTestTracker(book *Book, broker kis.Broker, oracle EntryOracle, gates settings.Store, rec *memRecorder) *CandidateTracker {
	cfg := TrackerConfig{
		Book:              book,
		Broker:            broker,
		Oracle:            oracle,
		Clock:             openClock{},
		Gates:             gates,
		Rules:             stdRules,
		DeviationLimitPct: 15,
	}
	// A nil *memRecorder stored in the interface field would still
	// compare non-nil; only assign when there is a real recorder.
	if rec != nil {
		cfg.Recorder = rec
	}
	return NewCandidateTracker(cfg)
}

func addWatching(t *testing.T, book *Book, c *Candidate) {
	t.Helper()
	if c.FxRate == 0 {
		c.FxRate = 1
	}
	if c.LotSize == 0 {
		c.LotSize = 1
	}
	if err := book.AddCandidate(c); err != nil {
		t.Fatalf("AddCandidate(%s): %v", c.Symbol, err)
	}
}

func TestEntryPlannedOncePerLifetime(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 90}

	oracle := &stubEntryOracle{plan: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100, Risk: 5, Confidence: 70}}
	tracker := newTestTracker(book, broker, oracle, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay, BudgetKRW: 100_000})

	tracker.Tick(context.Background())
	tracker.Tick(context.Background())
	tracker.Tick(context.Background())

	if oracle.calls != 1 {
		t.Errorf("oracle called %d times, want 1", oracle.calls)
	}
	c, ok := book.Candidate("005930")
	if !ok || c.Status != CandWatching {
		t.Fatalf("candidate not watching after plan: %+v", c)
	}
	if c.Entry == nil || c.Entry.TriggerPrice != 100 {
		t.Errorf("entry plan not stored: %+v", c.Entry)
	}
	if c.Risk != 5 {
		t.Errorf("risk = %d, want oracle override 5", c.Risk)
	}
}

func TestEntryPlanFailureIsRetried(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 90}

	oracle := &stubEntryOracle{err: errors.New("model unavailable")}
	tracker := newTestTracker(book, broker, oracle, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{Symbol: "005930", Market: market.KR, Style: StyleDay})
	tracker.Tick(context.Background())

	c, ok := book.Candidate("005930")
	if !ok {
		t.Fatal("candidate must stay in the pool after a failed plan")
	}
	if c.Status != CandWatching || c.EntryPlanned {
		t.Fatalf("candidate = %+v, want unplanned and watching", c)
	}

	// Oracle recovers: the next tick plans normally
	oracle.err = nil
	oracle.plan = &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100, Risk: 5}
	tracker.Tick(context.Background())

	if oracle.calls != 2 {
		t.Errorf("oracle called %d times, want 2", oracle.calls)
	}
	c, _ = book.Candidate("005930")
	if !c.EntryPlanned || c.Entry == nil {
		t.Errorf("plan not stored after retry: %+v", c)
	}
}

func TestDeviationGuardAbortsOrder(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	// 20% above the planned trigger: the breakout fires but the order
	// would chase a runaway price.
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 120}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{
		Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay,
		BudgetKRW: 100_000, EntryPlanned: true,
		Entry: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100},
	})
	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 0 {
		t.Fatalf("order placed despite %d%% deviation", 20)
	}
	c, _ := book.Candidate("005930")
	if c.Status != CandWatching {
		t.Errorf("status = %s, want watching after aborted order", c.Status)
	}
}

func TestDomesticBuyFillsImmediately(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 101}
	rec := &memRecorder{}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), rec)

	addWatching(t, book, &Candidate{
		Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay,
		BudgetKRW: 100_000, EntryPlanned: true, Risk: 5,
		Entry: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100},
	})
	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 1 {
		t.Fatalf("placed %d orders, want 1", len(broker.PlacedOrders))
	}
	ord := broker.PlacedOrders[0]
	if ord.Kind != kis.MarketOrder || ord.Side != kis.Buy {
		t.Errorf("order = %+v, want market buy", ord)
	}

	c, _ := book.Candidate("005930")
	if c.Status != CandFilled {
		t.Fatalf("status = %s, want filled", c.Status)
	}
	if c.AvgBuyPrice != 101 || c.HighSinceEntry != 101 {
		t.Errorf("fill bookkeeping wrong: avg %f high %f", c.AvgBuyPrice, c.HighSinceEntry)
	}
	if len(rec.trades) != 1 || rec.trades[0].Side != string(kis.Buy) {
		t.Errorf("trades recorded = %+v, want one buy", rec.trades)
	}
}

func TestOverseasBuyRestsAsPending(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(10_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["AAPL"] = &kis.Quote{Symbol: "AAPL", Price: 50}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{
		Symbol: "AAPL", Market: market.US, Exchange: "NASD", Style: StyleSwing,
		FxRate: 1400, BudgetKRW: 200_000, EntryPlanned: true,
		Entry: &llm.EntryPlan{Strategy: "pullback", TriggerPrice: 51},
	})
	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 1 || broker.PlacedOrders[0].Kind != kis.LimitOrder {
		t.Fatalf("orders = %+v, want one limit order", broker.PlacedOrders)
	}
	c, _ := book.Candidate("AAPL")
	if c.Status != CandPending {
		t.Fatalf("status = %s, want pending", c.Status)
	}
	if c.OrderNo == "" || c.OrderQty <= 0 {
		t.Errorf("order bookkeeping missing: %+v", c)
	}
}

func TestPermanentRejectionBlacklists(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["HALT"] = &kis.Quote{Symbol: "HALT", Price: 100}
	broker.OrderErr = &kis.APIError{Code: "APBK0919", Message: "거래정지 종목입니다"}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{
		Symbol: "HALT", Market: market.KR, Exchange: "KRX", Style: StyleDay,
		BudgetKRW: 100_000, EntryPlanned: true,
		Entry: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100},
	})
	tracker.Tick(context.Background())

	c, _ := book.Candidate("HALT")
	if c.Status != CandBlacklisted {
		t.Errorf("status = %s, want blacklisted", c.Status)
	}
	if !book.IsBlacklisted("HALT") {
		t.Error("symbol should be on the blacklist")
	}
}

func TestTransientOrderFailureRetries(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 100}
	broker.OrderErr = errors.New("connection reset")

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), nil)

	addWatching(t, book, &Candidate{
		Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay,
		BudgetKRW: 100_000, EntryPlanned: true,
		Entry: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100},
	})
	tracker.Tick(context.Background())

	c, _ := book.Candidate("005930")
	if c.Status != CandWatching {
		t.Errorf("status = %s, want watching for a later retry", c.Status)
	}
	if book.IsBlacklisted("005930") {
		t.Error("transient failure must not blacklist")
	}
}

func TestAutoBuyGateBlocksOrders(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 100}

	gates := settings.NewMemory(map[string]bool{settings.AutoBuy: false})
	tracker := newTestTracker(book, broker, &stubEntryOracle{}, gates, nil)

	addWatching(t, book, &Candidate{
		Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay,
		BudgetKRW: 100_000, EntryPlanned: true,
		Entry: &llm.EntryPlan{Strategy: "breakout", TriggerPrice: 100},
	})
	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 0 {
		t.Error("auto-buy off must not place orders")
	}
	c, _ := book.Candidate("005930")
	if c.Status != CandWatching {
		t.Errorf("status = %s, want watching", c.Status)
	}
}

func TestClosedMarketDropsCandidate(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()

	tracker := NewCandidateTracker(TrackerConfig{
		Book:   book,
		Broker: broker,
		Oracle: &stubEntryOracle{},
		Clock:  closedClock{},
		Gates:  allGatesOpen(),
	})

	addWatching(t, book, &Candidate{Symbol: "005930", Market: market.KR, Style: StyleDay})
	tracker.Tick(context.Background())

	if _, ok := book.Candidate("005930"); ok {
		t.Error("candidate should be dropped when its market is closed")
	}
}

func TestPendingFillPromotion(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Quotes["AAPL"] = &kis.Quote{Symbol: "AAPL", Price: 51}
	rec := &memRecorder{}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), rec)

	addWatching(t, book, &Candidate{Symbol: "AAPL", Market: market.US, Exchange: "NASD", Style: StyleSwing, FxRate: 1400})
	book.Transition("AAPL", CandAnalyzing)
	book.Transition("AAPL", CandOrdering)
	book.TransitionWith("AAPL", CandPending, func(c *Candidate) {
		c.OrderNo = "X100"
		c.OrderQty = 3
		c.OrderPrice = 50
		c.OrderedAt = time.Now()
	})

	// Broker still shows the order outstanding: no promotion
	broker.Pending = []kis.PendingOrder{{OrderNo: "X100", Symbol: "AAPL", Side: kis.Buy}}
	tracker.Tick(context.Background())
	if c, _ := book.Candidate("AAPL"); c.Status != CandPending {
		t.Fatalf("status = %s, want still pending", c.Status)
	}

	// Order gone from the outstanding list: it filled
	broker.Pending = nil
	tracker.Tick(context.Background())
	c, _ := book.Candidate("AAPL")
	if c.Status != CandFilled {
		t.Fatalf("status = %s, want filled", c.Status)
	}
	if c.AvgBuyPrice != 50 || c.FilledQty != 3 {
		t.Errorf("fill bookkeeping wrong: %+v", c)
	}
	if len(rec.trades) == 0 || rec.trades[0].Side != string(kis.Buy) {
		t.Errorf("fill should record a buy trade, got %+v", rec.trades)
	}
}

func TestFilledPositionHardStopSells(t *testing.T) {
	book := NewBook(0.5, 0.5)
	broker := kis.NewMockBroker()
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 94}
	rec := &memRecorder{}

	tracker := newTestTracker(book, broker, &stubEntryOracle{}, allGatesOpen(), rec)

	addWatching(t, book, &Candidate{Symbol: "005930", Market: market.KR, Exchange: "KRX", Style: StyleDay})
	book.Transition("005930", CandAnalyzing)
	book.Transition("005930", CandOrdering)
	book.TransitionWith("005930", CandFilled, func(c *Candidate) {
		c.AvgBuyPrice = 100
		c.FilledQty = 10
		c.FilledAt = time.Now()
		c.HighSinceEntry = 100
	})

	tracker.Tick(context.Background())

	if len(broker.PlacedOrders) != 1 || broker.PlacedOrders[0].Side != kis.Sell {
		t.Fatalf("orders = %+v, want one sell", broker.PlacedOrders)
	}
	c, _ := book.Candidate("005930")
	if c.Status != CandSold {
		t.Fatalf("status = %s, want sold", c.Status)
	}
	if len(rec.trades) != 1 || rec.trades[0].ProfitPct > -5.9 {
		t.Errorf("recorded trade = %+v, want ~-6%% sell", rec.trades)
	}
}

func TestSoldCandidateReleasesBudget(t *testing.T) {
	book := NewBook(0.5, 0.5)
	book.SetCash(1_000_000)

	addWatching(t, book, &Candidate{Symbol: "A", Market: market.KR, Style: StyleDay, BudgetKRW: 200_000})
	if _, remaining := book.BudgetFor(StyleDay); remaining != 300_000 {
		t.Fatalf("remaining = %f, want 300000 while committed", remaining)
	}

	book.Transition("A", CandAnalyzing)
	book.Transition("A", CandOrdering)
	book.Transition("A", CandFilled)
	book.Transition("A", CandSold)

	if _, remaining := book.BudgetFor(StyleDay); remaining != 500_000 {
		t.Errorf("remaining = %f, want full 500000 after sale", remaining)
	}
}
