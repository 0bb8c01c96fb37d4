package scanner

import (
	"context"
	"strings"
	"testing"
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
	"kis-trading-bot/internal/trader"
)

// 2026-08-31 is a Monday
func kst(hour, min int) time.Time {
	loc := time.FixedZone("KST", 9*60*60)
	return time.Date(2026, 8, 31, hour, min, 0, 0, loc)
}

type countingRates struct{ calls int }

func (c *countingRates) Rate(context.Context, market.ID) float64 {
	c.calls++
	return 1
}

type memCycleStore struct {
	cycles []Cycle
}

func (s *memCycleStore) SaveCycle(_ context.Context, c Cycle) error {
	s.cycles = append(s.cycles, c)
	return nil
}

func (s *memCycleStore) LatestCycle(_ context.Context) (*Cycle, error) {
	if len(s.cycles) == 0 {
		return nil, nil
	}
	last := s.cycles[len(s.cycles)-1]
	return &last, nil
}

func testEngine(t *testing.T, broker *kis.MockBroker, oracle ScreenOracle, gates settings.Store, store CycleStore) (*Engine, *trader.Book) {
	t.Helper()
	clock, err := market.NewClock()
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	rates := fixedRates{1}
	book := trader.NewBook(0.5, 0.5)
	candles := candlesFor("005930.KS")
	engine := NewEngine(EngineConfig{
		Clock:    clock,
		Selector: NewTargetSelector(broker, nil, rates, gates, nil, 50),
		Pipeline: fastPipeline(broker, candles, oracle, 1),
		Book:     book,
		Broker:   broker,
		Rates:    rates,
		Gates:    gates,
		Cycles:   store,
		Interval: 5 * time.Minute,
	})
	return engine, book
}

func TestCycleAdmitsSelectedCandidates(t *testing.T) {
	broker := kis.NewMockBroker()
	broker.Cash = kis.CashSummary{KRWAvailable: 10_000_000, TotalKRW: 10_000_000}
	broker.RankingRows[market.KR] = []kis.Ranked{
		{Symbol: "005930", Name: "Samsung Electronics", Exchange: "KRX", Price: 50_000},
	}
	broker.Quotes["005930"] = &kis.Quote{Symbol: "005930", Price: 50_000}
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "buy", Score: 82, Risk: 5, Style: "day"}}
	store := &memCycleStore{}

	engine, book := testEngine(t, broker, oracle, settings.NewMemory(nil), store)
	engine.step(context.Background(), kst(10, 0))

	c, ok := book.Candidate("005930")
	if !ok || c.Status != trader.CandWatching {
		t.Fatalf("candidate not admitted: %+v", c)
	}
	if c.BudgetKRW <= 0 {
		t.Errorf("budget not committed: %f", c.BudgetKRW)
	}
	if book.Ledger().TotalCashKRW != 10_000_000 {
		t.Errorf("ledger cash = %f, want 10000000", book.Ledger().TotalCashKRW)
	}

	var kr *Cycle
	for i := range store.cycles {
		if store.cycles[i].Market == market.KR {
			kr = &store.cycles[i]
		}
	}
	if kr == nil {
		t.Fatal("no KR cycle persisted")
	}
	if kr.Targets != 1 || kr.Candidates != 1 || kr.Selected != 1 {
		t.Errorf("cycle record = %+v, want 1/1/1", kr)
	}
	if kr.ID == "" {
		t.Error("cycle has no id")
	}
	if len(kr.Results) != 1 || kr.Results[0].Symbol != "005930" || kr.Results[0].Action != "buy" {
		t.Errorf("cycle results = %+v, want the analyzed verdict persisted", kr.Results)
	}
}

func TestAutoScanGateSkipsCycles(t *testing.T) {
	broker := kis.NewMockBroker()
	broker.RankingRows[market.KR] = []kis.Ranked{
		{Symbol: "005930", Name: "Samsung Electronics", Exchange: "KRX", Price: 50_000},
	}
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "buy", Score: 90, Style: "day"}}
	gates := settings.NewMemory(map[string]bool{settings.AutoScan: false})
	store := &memCycleStore{}

	engine, book := testEngine(t, broker, oracle, gates, store)
	engine.step(context.Background(), kst(10, 0))

	if len(store.cycles) != 0 {
		t.Error("cycles ran with auto-scan off")
	}
	if len(book.Candidates()) != 0 {
		t.Error("candidates admitted with auto-scan off")
	}
}

func TestPauseSuspendsCycles(t *testing.T) {
	broker := kis.NewMockBroker()
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}
	store := &memCycleStore{}

	engine, _ := testEngine(t, broker, oracle, settings.NewMemory(nil), store)
	engine.Pause()
	engine.step(context.Background(), kst(10, 0))
	if len(store.cycles) != 0 {
		t.Error("cycle ran while paused")
	}

	engine.Resume()
	engine.step(context.Background(), kst(10, 0))
	if len(store.cycles) == 0 {
		t.Error("cycle did not run after resume")
	}
}

func TestOffMarketPassRunsOncePerClosedStretch(t *testing.T) {
	broker := kis.NewMockBroker()
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}
	rates := &countingRates{}

	clock, _ := market.NewClock()
	gates := settings.NewMemory(nil)
	engine := NewEngine(EngineConfig{
		Clock:    clock,
		Selector: NewTargetSelector(broker, nil, rates, gates, nil, 50),
		Pipeline: fastPipeline(broker, &stubCandles{}, oracle, 1),
		Book:     trader.NewBook(0.5, 0.5),
		Broker:   broker,
		Rates:    rates,
		Gates:    gates,
	})

	// Monday 20:00 KST: every session is closed until the US open
	engine.step(context.Background(), kst(20, 0))
	warmed := rates.calls
	if warmed != len(market.Markets) {
		t.Fatalf("fx warm calls = %d, want %d", warmed, len(market.Markets))
	}

	engine.step(context.Background(), kst(20, 5))
	if rates.calls != warmed {
		t.Error("off-market pass repeated within the same closed stretch")
	}
}

type stubHeadlines struct {
	byMarket map[market.ID][]string
}

func (s *stubHeadlines) Headlines(_ context.Context, mkt market.ID) []string {
	return s.byMarket[mkt]
}

type stubSentiments struct {
	calls     int
	headlines []string
}

func (s *stubSentiments) MarketSentiment(_ context.Context, _ string, headlines []string) (*llm.SentimentReport, error) {
	s.calls++
	s.headlines = headlines
	return &llm.SentimentReport{Sentiment: "bullish", Score: 70, Summary: "tech strength"}, nil
}

func TestOffMarketPassRefreshesSentiment(t *testing.T) {
	broker := kis.NewMockBroker()
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}
	headlines := &stubHeadlines{byMarket: map[market.ID][]string{
		market.KR: {"Samsung posts record quarter", "Chip demand surges"},
	}}
	sentiments := &stubSentiments{}

	clock, _ := market.NewClock()
	gates := settings.NewMemory(nil)
	engine := NewEngine(EngineConfig{
		Clock:      clock,
		Selector:   NewTargetSelector(broker, nil, fixedRates{1}, gates, nil, 50),
		Pipeline:   fastPipeline(broker, &stubCandles{}, oracle, 1),
		Book:       trader.NewBook(0.5, 0.5),
		Broker:     broker,
		Rates:      fixedRates{1},
		Gates:      gates,
		Headlines:  headlines,
		Sentiments: sentiments,
	})

	// Monday 20:00 KST: everything is closed, the maintenance pass runs
	engine.step(context.Background(), kst(20, 0))

	if sentiments.calls != 1 {
		t.Fatalf("sentiment calls = %d, want 1 (only KR had headlines)", sentiments.calls)
	}
	if len(sentiments.headlines) != 2 {
		t.Errorf("headlines passed = %v, want both KR titles", sentiments.headlines)
	}
	summary := engine.sentimentFor(market.KR)
	if summary == "" || !strings.Contains(summary, "bullish") {
		t.Errorf("cached sentiment = %q, want the bullish summary", summary)
	}
	if engine.sentimentFor(market.JP) != "" {
		t.Error("markets without headlines must not get a sentiment")
	}
}

func TestNewsCollectGateSkipsSentiment(t *testing.T) {
	broker := kis.NewMockBroker()
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}
	headlines := &stubHeadlines{byMarket: map[market.ID][]string{
		market.KR: {"Samsung posts record quarter"},
	}}
	sentiments := &stubSentiments{}

	clock, _ := market.NewClock()
	gates := settings.NewMemory(map[string]bool{settings.NewsCollect: false})
	engine := NewEngine(EngineConfig{
		Clock:      clock,
		Selector:   NewTargetSelector(broker, nil, fixedRates{1}, gates, nil, 50),
		Pipeline:   fastPipeline(broker, &stubCandles{}, oracle, 1),
		Book:       trader.NewBook(0.5, 0.5),
		Broker:     broker,
		Rates:      fixedRates{1},
		Gates:      gates,
		Headlines:  headlines,
		Sentiments: sentiments,
	})

	engine.step(context.Background(), kst(20, 0))

	if sentiments.calls != 0 {
		t.Error("sentiment refreshed with news collection off")
	}
}

func TestClosingPassDropsWatchingCandidates(t *testing.T) {
	broker := kis.NewMockBroker()
	broker.Cash = kis.CashSummary{TotalKRW: 1_000_000}
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}

	engine, book := testEngine(t, broker, oracle, settings.NewMemory(nil), nil)

	// Establish the open state, then plant candidates directly
	engine.step(context.Background(), kst(10, 0))
	book.AddCandidate(&trader.Candidate{Symbol: "WATCH", Market: market.KR, Style: trader.StyleDay})
	book.AddCandidate(&trader.Candidate{Symbol: "INFLIGHT", Market: market.KR, Style: trader.StyleDay})
	book.Transition("INFLIGHT", trader.CandAnalyzing)
	book.Transition("INFLIGHT", trader.CandOrdering)
	book.Transition("INFLIGHT", trader.CandPending)

	// All sessions closed: the KR close runs the closing pass
	engine.step(context.Background(), kst(20, 0))

	if _, ok := book.Candidate("WATCH"); ok {
		t.Error("watching candidate should be dropped at the close")
	}
	if c, ok := book.Candidate("INFLIGHT"); !ok || c.Status != trader.CandPending {
		t.Error("in-flight order must survive the close")
	}
}

func TestResumeDelayHonorsCadence(t *testing.T) {
	broker := kis.NewMockBroker()
	oracle := &stubScreenOracle{verdict: &llm.ScreeningResult{Action: "hold", Style: "day"}}

	store := &memCycleStore{cycles: []Cycle{
		{ID: "x", Market: market.KR, FinishedAt: time.Now().Add(-time.Minute)},
	}}
	engine, _ := testEngine(t, broker, oracle, settings.NewMemory(nil), store)

	delay := engine.resumeDelay(context.Background())
	if delay < 3*time.Minute || delay > 4*time.Minute {
		t.Errorf("resume delay = %s, want about 4 minutes", delay)
	}

	engine, _ = testEngine(t, broker, oracle, settings.NewMemory(nil), nil)
	if d := engine.resumeDelay(context.Background()); d != 0 {
		t.Errorf("delay without a store = %s, want 0", d)
	}
}
