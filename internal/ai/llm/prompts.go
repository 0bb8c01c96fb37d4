package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"kis-trading-bot/internal/analysis"
)

// ScreeningRequest is the market snapshot behind a Screen call
type ScreeningRequest struct {
	Symbol     string
	Name       string
	Market     string
	Currency   string
	Price      float64
	FeeRate    float64 // round-trip fee fraction
	Timeframes map[string]analysis.Summary
	Hints      []string // strategy performance hints
	Sentiment  string   // optional market sentiment summary
}

// EntryRequest is the context behind a PlanEntry call
type EntryRequest struct {
	Symbol    string
	Market    string
	Price     float64
	Score     int
	Style     string
	Timeframe analysis.Summary // most granular view
}

// ExitRequest is the context behind a PlanExit call
type ExitRequest struct {
	Symbol      string
	Market      string
	AvgBuyPrice float64
	Price       float64
	FeeRate     float64
	HeldFor     string // human-readable holding duration
	Timeframe   analysis.Summary
}

func buildScreeningPrompt(req ScreeningRequest) string {
	var b strings.Builder
	b.WriteString("You are a short-term equity trading analyst.\n")
	fmt.Fprintf(&b, "Evaluate %s (%s) on the %s market, currently %.4f %s.\n",
		req.Symbol, req.Name, req.Market, req.Price, req.Currency)
	fmt.Fprintf(&b, "Round-trip trading cost: %.4f%% of the position.\n", req.FeeRate*100)

	if len(req.Timeframes) > 0 {
		b.WriteString("Technical summary per timeframe:\n")
		for _, tf := range []string{"5m", "1h", "1d"} {
			if s, ok := req.Timeframes[tf]; ok {
				data, _ := json.Marshal(s)
				fmt.Fprintf(&b, "  %s: %s\n", tf, data)
			}
		}
	}
	if req.Sentiment != "" {
		fmt.Fprintf(&b, "Market sentiment: %s\n", req.Sentiment)
	}
	if len(req.Hints) > 0 {
		fmt.Fprintf(&b, "Recent strategy performance: %s\n", strings.Join(req.Hints, "; "))
	}

	b.WriteString(`
Decide whether to buy this stock for a short-term trade.
The position must be able to clear the round-trip fees.
Respond with ONLY a JSON object:
{"action":"buy|hold|avoid","score":0-100,"risk":1-10,"style":"swing|day","target_price":number,"reason":"one sentence"}`)
	return b.String()
}

func buildEntryPrompt(req EntryRequest) string {
	data, _ := json.Marshal(req.Timeframe)
	return fmt.Sprintf(`You are a trade execution planner.
%s on %s scored %d/100 as a %s-style buy, current price %.4f.
Latest intraday technicals: %s

Choose an entry strategy:
- "breakout": enter when price rises through the trigger
- "pullback": enter when price dips to the trigger

Respond with ONLY a JSON object:
{"strategy":"breakout|pullback","trigger_price":number,"risk":1-10,"confidence":0-100,"reason":"one sentence"}`,
		req.Symbol, req.Market, req.Score, req.Style, req.Price, data)
}

func buildExitPrompt(req ExitRequest) string {
	data, _ := json.Marshal(req.Timeframe)
	return fmt.Sprintf(`You are a position manager.
Holding %s on %s: average buy %.4f, current %.4f, held for %s.
Round-trip fees: %.4f%% of the position.
Latest technicals: %s

Set a take-profit target above the break-even price and a protective stop.
Respond with ONLY a JSON object:
{"target_price":number,"stop_price":number,"confidence":0-100,"reason":"one sentence"}`,
		req.Symbol, req.Market, req.AvgBuyPrice, req.Price, req.HeldFor, req.FeeRate*100, data)
}

func buildSentimentPrompt(marketName string, headlines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade the near-term sentiment for the %s stock market from these headlines:\n", marketName)
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}
	b.WriteString(`
Respond with ONLY a JSON object:
{"sentiment":"bullish|bearish|neutral","score":-100..100,"summary":"one sentence"}`)
	return b.String()
}
