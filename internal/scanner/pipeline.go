package scanner

import (
	"context"
	"sync"
	"time"

	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/analysis"
	"kis-trading-bot/internal/fees"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/marketdata"
	"kis-trading-bot/internal/trader"
)

// CandleSource fetches OHLCV history for a Yahoo ticker
type CandleSource interface {
	Candles(ctx context.Context, yahooSymbol string, tf marketdata.Timeframe) ([]marketdata.Candle, error)
}

// ScreenOracle gives the first-pass buy verdict on a symbol
type ScreenOracle interface {
	Screen(ctx context.Context, req llm.ScreeningRequest) (*llm.ScreeningResult, error)
}

// PipelineConfig tunes the analysis pipeline
type PipelineConfig struct {
	BatchSize    int
	BatchDelay   time.Duration
	WorkerCount  int
	BuyThreshold int
}

// Pipeline turns scan targets into buy candidates: candle history on
// three timeframes, technical summaries, then an oracle screening per
// symbol. Targets move through in rate-limited batches with a worker
// pool inside each batch.
type Pipeline struct {
	broker  kis.Broker
	candles CandleSource
	oracle  ScreenOracle
	rates   RateSource
	cfg     PipelineConfig
	logger  *logging.Logger
}

// NewPipeline builds the analysis pipeline
func NewPipeline(broker kis.Broker, candles CandleSource, oracle ScreenOracle, rates RateSource, cfg PipelineConfig) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 3 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 6
	}
	if cfg.BuyThreshold <= 0 {
		cfg.BuyThreshold = 75
	}
	return &Pipeline{
		broker:  broker,
		candles: candles,
		oracle:  oracle,
		rates:   rates,
		cfg:     cfg,
		logger:  logging.WithComponent("pipeline"),
	}
}

// Result is the pipeline's output for one market pass. Results holds
// every analyzed target's verdict, buys and passes alike, for the
// persisted cycle record.
type Result struct {
	Analyzed   int
	Candidates []*trader.Candidate
	Results    []TargetResult
}

// Run analyzes every target and returns the ones the oracle wants to
// buy with conviction at or above the threshold.
func (p *Pipeline) Run(ctx context.Context, info market.Info, targets []Target, sentiment string, hints []string) Result {
	fxRate := p.rates.Rate(ctx, info.ID)

	var (
		mu     sync.Mutex
		result Result
	)

	for start := 0; start < len(targets); start += p.cfg.BatchSize {
		if ctx.Err() != nil {
			return result
		}
		end := start + p.cfg.BatchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		jobs := make(chan Target)
		var wg sync.WaitGroup
		for w := 0; w < p.cfg.WorkerCount; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for target := range jobs {
					candidate, res := p.analyzeTarget(ctx, info, target, fxRate, sentiment, hints)
					mu.Lock()
					if res != nil {
						result.Analyzed++
						result.Results = append(result.Results, *res)
					}
					if candidate != nil {
						result.Candidates = append(result.Candidates, candidate)
					}
					mu.Unlock()
				}
			}()
		}
		for _, target := range batch {
			select {
			case jobs <- target:
			case <-ctx.Done():
			}
		}
		close(jobs)
		wg.Wait()

		if end < len(targets) {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(p.cfg.BatchDelay):
			}
		}
	}

	p.logger.Info("market pass complete",
		"market", string(info.ID), "targets", len(targets),
		"analyzed", result.Analyzed, "candidates", len(result.Candidates))
	return result
}

// analyzeTarget runs one symbol through candles, technicals, and the
// oracle. Returns the candidate (nil unless it is a buy) and the
// verdict record (nil when the symbol produced no data to analyze).
func (p *Pipeline) analyzeTarget(ctx context.Context, info market.Info, target Target, fxRate float64, sentiment string, hints []string) (*trader.Candidate, *TargetResult) {
	yahooSym := marketdata.YahooSymbol(target.Market, target.Exchange, target.Symbol)

	// The three timeframes fetch in parallel; they hit independent
	// chart endpoints and the slowest one bounds the symbol's latency.
	var (
		tfMu       sync.Mutex
		tfWg       sync.WaitGroup
		timeframes = make(map[string]analysis.Summary, len(marketdata.StandardTimeframes))
		lastClose  = make(map[string]float64, len(marketdata.StandardTimeframes))
	)
	for _, tf := range marketdata.StandardTimeframes {
		tfWg.Add(1)
		go func(tf marketdata.Timeframe) {
			defer tfWg.Done()
			candles, err := p.candles.Candles(ctx, yahooSym, tf)
			if err != nil {
				p.logger.Warn("candle fetch failed",
					"symbol", target.Symbol, "interval", tf.Interval, "error", err)
				return
			}
			if len(candles) == 0 {
				return
			}
			closes := make([]float64, len(candles))
			volumes := make([]float64, len(candles))
			for i, c := range candles {
				closes[i] = c.Close
				volumes[i] = c.Volume
			}
			summary := analysis.Summarize(closes, volumes)
			tfMu.Lock()
			timeframes[tf.Interval] = summary
			lastClose[tf.Interval] = closes[len(closes)-1]
			tfMu.Unlock()
		}(tf)
	}
	tfWg.Wait()
	if len(timeframes) == 0 {
		p.logger.Info("no candle data, skipping", "symbol", target.Symbol)
		return nil, nil
	}

	// StandardTimeframes run most granular first, so the first close
	// found is the freshest one available.
	var fallbackPrice float64
	for _, tf := range marketdata.StandardTimeframes {
		if px, ok := lastClose[tf.Interval]; ok {
			fallbackPrice = px
			break
		}
	}

	price := fallbackPrice
	if quote, err := p.broker.Quote(ctx, target.Market, target.Exchange, target.Symbol); err == nil && quote.Price > 0 {
		price = quote.Price
	}
	if price <= 0 {
		return nil, nil
	}

	verdict, err := p.oracle.Screen(ctx, llm.ScreeningRequest{
		Symbol:     target.Symbol,
		Name:       target.Name,
		Market:     info.Name,
		Currency:   info.Currency,
		Price:      price,
		FeeRate:    fees.RoundTripRate(target.Exchange),
		Timeframes: timeframes,
		Hints:      hints,
		Sentiment:  sentiment,
	})
	if err != nil {
		p.logger.Warn("screening failed", "symbol", target.Symbol, "error", err)
		return nil, &TargetResult{
			Symbol: target.Symbol, Name: target.Name,
			Action: "error", Price: price, Reason: err.Error(),
		}
	}

	res := &TargetResult{
		Symbol: target.Symbol,
		Name:   target.Name,
		Action: verdict.Action,
		Score:  verdict.Score,
		Risk:   verdict.Risk,
		Style:  verdict.Style,
		Price:  price,
		Reason: verdict.Reason,
	}
	if verdict.Action != "buy" || verdict.Score < p.cfg.BuyThreshold {
		return nil, res
	}

	lot, err := p.broker.LotSize(ctx, target.Exchange, target.Symbol)
	if err != nil || lot <= 0 {
		lot = kis.DefaultLotSize(target.Exchange)
	}

	p.logger.Info("buy candidate found",
		"symbol", target.Symbol, "score", verdict.Score, "risk", verdict.Risk, "style", verdict.Style)
	return &trader.Candidate{
		Symbol:     target.Symbol,
		Name:       target.Name,
		Market:     target.Market,
		Exchange:   target.Exchange,
		Style:      trader.TradeStyle(verdict.Style),
		Score:      verdict.Score,
		Risk:       verdict.Risk,
		Reason:     verdict.Reason,
		PriceLocal: price,
		PriceKRW:   price * fxRate,
		FxRate:     fxRate,
		LotSize:    lot,
	}, res
}
