package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/settings"
	"kis-trading-bot/internal/trader"
)

// SentimentOracle grades headline batches per market
type SentimentOracle interface {
	MarketSentiment(ctx context.Context, marketName string, headlines []string) (*llm.SentimentReport, error)
}

// EngineConfig wires the scan engine. Cycles, Hints, Headlines, and
// Sentiments may be nil; the engine degrades gracefully without them.
type EngineConfig struct {
	Clock      *market.Clock
	Selector   *TargetSelector
	Pipeline   *Pipeline
	Book       *trader.Book
	Broker     kis.Broker
	Rates      RateSource
	Gates      settings.Store
	Cycles     CycleStore
	Hints      HintSource
	Headlines  HeadlineSource
	Sentiments SentimentOracle
	Interval   time.Duration
}

// Engine owns the scan cadence: while any market is open it runs a
// full cycle per interval (targets, analysis, budget selection, pool
// replacement); while everything is closed it runs the off-market
// maintenance pass once.
type Engine struct {
	cfg      EngineConfig
	interval time.Duration
	logger   *logging.Logger

	stop chan struct{}

	mu            sync.Mutex
	paused        bool
	sentiment     map[market.ID]string
	wasOpen       map[market.ID]bool
	offMarketDone bool
}

// NewEngine builds the scan engine
func NewEngine(cfg EngineConfig) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Engine{
		cfg:       cfg,
		interval:  interval,
		logger:    logging.WithComponent("scan-engine"),
		stop:      make(chan struct{}),
		sentiment: make(map[market.ID]string),
		wasOpen:   make(map[market.ID]bool),
	}
}

// Pause suspends scan cycles without stopping the loop
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	e.logger.Info("scanning paused")
}

// Resume lifts a pause
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.logger.Info("scanning resumed")
}

// Paused reports whether cycles are suspended
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Stop ends the Run loop
func (e *Engine) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Run drives scan cycles until the context is cancelled or Stop is
// called. A restart inside the cadence window waits out the remainder
// instead of rescanning immediately.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("scan engine started", "interval", e.interval.String())

	if wait := e.resumeDelay(ctx); wait > 0 {
		e.logger.Info("resuming cadence from last persisted cycle", "wait", wait.Round(time.Second).String())
		if !e.sleep(ctx, wait) {
			return
		}
	}

	for {
		e.step(ctx, time.Now())

		if !e.sleep(ctx, e.interval) {
			e.logger.Info("scan engine stopped")
			return
		}
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.stop:
		return false
	case <-time.After(d):
		return true
	}
}

// resumeDelay computes how long to wait before the first cycle based
// on the last persisted cycle record.
func (e *Engine) resumeDelay(ctx context.Context) time.Duration {
	if e.cfg.Cycles == nil {
		return 0
	}
	last, err := e.cfg.Cycles.LatestCycle(ctx)
	if err != nil || last == nil {
		return 0
	}
	elapsed := time.Since(last.FinishedAt)
	if elapsed < 0 || elapsed >= e.interval {
		return 0
	}
	return e.interval - elapsed
}

// step runs one tick of the engine: a scan cycle when markets are
// open, off-market maintenance otherwise.
func (e *Engine) step(ctx context.Context, now time.Time) {
	e.noteSessionTransitions(ctx, now)

	if e.Paused() || !e.cfg.Gates.Enabled(ctx, settings.AutoScan) {
		return
	}

	open := e.cfg.Clock.OpenMarkets(now)
	if len(open) == 0 {
		e.mu.Lock()
		done := e.offMarketDone
		e.offMarketDone = true
		e.mu.Unlock()
		if !done && e.cfg.Gates.Enabled(ctx, settings.OffMarket) {
			e.offMarketPass(ctx)
		}
		return
	}

	e.mu.Lock()
	e.offMarketDone = false
	e.mu.Unlock()
	e.runCycle(ctx, open)
}

// noteSessionTransitions runs the closing pass for markets that left
// their trading window since the previous tick.
func (e *Engine) noteSessionTransitions(ctx context.Context, now time.Time) {
	for _, info := range market.Markets {
		isOpen := e.cfg.Clock.IsOpen(info.ID, now)
		e.mu.Lock()
		was := e.wasOpen[info.ID]
		e.wasOpen[info.ID] = isOpen
		e.mu.Unlock()
		if was && !isOpen {
			e.closingPass(ctx, info.ID)
		}
	}
}

// runCycle scans every open market, then allocates budget across the
// combined candidate set and swaps the pool.
func (e *Engine) runCycle(ctx context.Context, open []market.ID) {
	cashKRW := e.refreshCash(ctx)

	hints := e.strategyHints(ctx)

	var allCandidates []*trader.Candidate
	records := make([]Cycle, 0, len(open))
	for _, id := range open {
		if ctx.Err() != nil {
			return
		}
		info, ok := e.cfg.Clock.Lookup(id)
		if !ok {
			continue
		}

		started := time.Now()
		targets := e.cfg.Selector.Select(ctx, info, cashKRW)
		result := e.cfg.Pipeline.Run(ctx, info, targets, e.sentimentFor(id), hints)
		allCandidates = append(allCandidates, result.Candidates...)

		records = append(records, Cycle{
			ID:         uuid.New().String(),
			Market:     id,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Targets:    len(targets),
			Analyzed:   result.Analyzed,
			Candidates: len(result.Candidates),
			Results:    result.Results,
		})
	}

	selected := trader.SelectWithinBudget(e.cfg.Book.Ledger(), allCandidates)
	e.cfg.Book.ReplacePool(selected)

	selectedPerMarket := make(map[market.ID]int)
	for _, c := range selected {
		selectedPerMarket[c.Market]++
	}
	for i := range records {
		records[i].Selected = selectedPerMarket[records[i].Market]
		if e.cfg.Cycles != nil {
			if err := e.cfg.Cycles.SaveCycle(ctx, records[i]); err != nil {
				e.logger.Warn("cycle record save failed", "market", string(records[i].Market), "error", err)
			}
		}
	}

	e.logger.Info("scan cycle complete",
		"markets", len(open), "candidates", len(allCandidates), "selected", len(selected))
}

// refreshCash pulls orderable cash and updates the budget ledger
func (e *Engine) refreshCash(ctx context.Context) float64 {
	cash, err := e.cfg.Broker.AvailableCash(ctx)
	if err != nil {
		e.logger.Warn("cash inquiry failed, keeping previous ledger", "error", err)
		return e.cfg.Book.Ledger().TotalCashKRW
	}
	e.cfg.Book.SetCash(cash.TotalKRW)
	return cash.TotalKRW
}

func (e *Engine) strategyHints(ctx context.Context) []string {
	if e.cfg.Hints == nil {
		return nil
	}
	return e.cfg.Hints.StrategyHints(ctx)
}

func (e *Engine) sentimentFor(id market.ID) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sentiment[id]
}

// closingPass clears watching candidates of a market that just closed.
// Orders in flight and filled positions stay tracked.
func (e *Engine) closingPass(ctx context.Context, id market.ID) {
	dropped := 0
	for _, c := range e.cfg.Book.CandidatesIn(trader.CandWatching) {
		if c.Market != id {
			continue
		}
		e.cfg.Book.Drop(c.Symbol)
		dropped++
	}

	held := 0
	for _, h := range e.cfg.Book.Holdings() {
		if h.Market == id {
			held++
		}
	}
	e.logger.Info("market closed",
		"market", string(id), "candidates_dropped", dropped, "positions_held", held)
}

// offMarketPass runs once per closed stretch: warm the FX cache and
// refresh per-market sentiment for the next session.
func (e *Engine) offMarketPass(ctx context.Context) {
	e.logger.Info("off-market maintenance pass")

	if e.cfg.Rates != nil {
		for _, info := range market.Markets {
			e.cfg.Rates.Rate(ctx, info.ID)
		}
	}

	if e.cfg.Headlines == nil || e.cfg.Sentiments == nil ||
		!e.cfg.Gates.Enabled(ctx, settings.NewsCollect) {
		return
	}
	for _, info := range market.Markets {
		if ctx.Err() != nil {
			return
		}
		headlines := e.cfg.Headlines.Headlines(ctx, info.ID)
		if len(headlines) == 0 {
			continue
		}
		report, err := e.cfg.Sentiments.MarketSentiment(ctx, info.Name, headlines)
		if err != nil {
			e.logger.Warn("sentiment refresh failed", "market", string(info.ID), "error", err)
			continue
		}
		summary := fmt.Sprintf("%s (%+d): %s", report.Sentiment, report.Score, report.Summary)
		e.mu.Lock()
		e.sentiment[info.ID] = summary
		e.mu.Unlock()
		e.logger.Info("sentiment updated", "market", string(info.ID), "sentiment", report.Sentiment)
	}
}
