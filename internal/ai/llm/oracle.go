package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kis-trading-bot/internal/logging"
)

// Completer is the LLM surface the oracle needs. Satisfied by *Client
// and by test mocks.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OracleError wraps a failed oracle call with the stage it failed at
// and the raw model output, so malformed responses can be diagnosed.
type OracleError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Stage, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// Oracle turns market snapshots into trading decisions via the LLM.
// Each call site gets its own strictly-typed result; responses that do
// not parse into the expected shape are errors, never guesses.
type Oracle struct {
	client Completer
	logger *logging.Logger
}

// NewOracle wraps a completion client
func NewOracle(client Completer) *Oracle {
	return &Oracle{
		client: client,
		logger: logging.WithComponent("oracle"),
	}
}

// ScreeningResult is the verdict of the first-pass scan of a symbol
type ScreeningResult struct {
	Action      string  `json:"action"` // "buy", "hold", "avoid"
	Score       int     `json:"score"`  // 0-100 conviction
	Risk        int     `json:"risk"`   // 1-10, higher is riskier
	Style       string  `json:"style"`  // "swing" or "day"
	TargetPrice float64 `json:"target_price"`
	Reason      string  `json:"reason"`
}

// EntryPlan is the entry strategy for a buy candidate
type EntryPlan struct {
	Strategy     string  `json:"strategy"` // "breakout" or "pullback"
	TriggerPrice float64 `json:"trigger_price"`
	Risk         int     `json:"risk"`       // 1-10
	Confidence   int     `json:"confidence"` // 0-100
	Reason       string  `json:"reason"`
}

// ExitPlan is the exit strategy for a held position
type ExitPlan struct {
	TargetPrice float64 `json:"target_price"`
	StopPrice   float64 `json:"stop_price"`
	Confidence  int     `json:"confidence"`
	Reason      string  `json:"reason"`
}

// SentimentReport grades a batch of headlines for one market
type SentimentReport struct {
	Sentiment string `json:"sentiment"` // "bullish", "bearish", "neutral"
	Score     int    `json:"score"`     // -100..100
	Summary   string `json:"summary"`
}

// Screen asks the oracle for a first-pass verdict on a symbol
func (o *Oracle) Screen(ctx context.Context, req ScreeningRequest) (*ScreeningResult, error) {
	raw, err := o.client.Complete(ctx, buildScreeningPrompt(req))
	if err != nil {
		return nil, &OracleError{Stage: "screen", Err: err}
	}

	var result ScreeningResult
	if err := decodeInto(raw, &result); err != nil {
		return nil, &OracleError{Stage: "screen", Raw: raw, Err: err}
	}

	switch result.Action {
	case "buy", "hold", "avoid":
	default:
		return nil, &OracleError{Stage: "screen", Raw: raw,
			Err: fmt.Errorf("invalid action %q", result.Action)}
	}
	result.Score = clamp(result.Score, 0, 100)
	result.Risk = clamp(result.Risk, 1, 10)
	if result.Style != "swing" && result.Style != "day" {
		result.Style = "day"
	}
	return &result, nil
}

// PlanEntry asks the oracle how to enter a screened candidate
func (o *Oracle) PlanEntry(ctx context.Context, req EntryRequest) (*EntryPlan, error) {
	raw, err := o.client.Complete(ctx, buildEntryPrompt(req))
	if err != nil {
		return nil, &OracleError{Stage: "entry", Err: err}
	}

	var plan EntryPlan
	if err := decodeInto(raw, &plan); err != nil {
		return nil, &OracleError{Stage: "entry", Raw: raw, Err: err}
	}
	if plan.Strategy != "breakout" && plan.Strategy != "pullback" {
		return nil, &OracleError{Stage: "entry", Raw: raw,
			Err: fmt.Errorf("invalid strategy %q", plan.Strategy)}
	}
	if plan.TriggerPrice <= 0 {
		return nil, &OracleError{Stage: "entry", Raw: raw,
			Err: fmt.Errorf("non-positive trigger price %f", plan.TriggerPrice)}
	}
	plan.Risk = clamp(plan.Risk, 1, 10)
	plan.Confidence = clamp(plan.Confidence, 0, 100)
	return &plan, nil
}

// PlanExit asks the oracle for target and stop prices on a holding
func (o *Oracle) PlanExit(ctx context.Context, req ExitRequest) (*ExitPlan, error) {
	raw, err := o.client.Complete(ctx, buildExitPrompt(req))
	if err != nil {
		return nil, &OracleError{Stage: "exit", Err: err}
	}

	var plan ExitPlan
	if err := decodeInto(raw, &plan); err != nil {
		return nil, &OracleError{Stage: "exit", Raw: raw, Err: err}
	}
	if plan.TargetPrice <= 0 || plan.StopPrice <= 0 {
		return nil, &OracleError{Stage: "exit", Raw: raw,
			Err: fmt.Errorf("non-positive target/stop %f/%f", plan.TargetPrice, plan.StopPrice)}
	}
	if plan.StopPrice >= plan.TargetPrice {
		return nil, &OracleError{Stage: "exit", Raw: raw,
			Err: fmt.Errorf("stop %f not below target %f", plan.StopPrice, plan.TargetPrice)}
	}
	plan.Confidence = clamp(plan.Confidence, 0, 100)
	return &plan, nil
}

// MarketSentiment grades a batch of headlines for one market
func (o *Oracle) MarketSentiment(ctx context.Context, marketName string, headlines []string) (*SentimentReport, error) {
	raw, err := o.client.Complete(ctx, buildSentimentPrompt(marketName, headlines))
	if err != nil {
		return nil, &OracleError{Stage: "sentiment", Err: err}
	}

	var report SentimentReport
	if err := decodeInto(raw, &report); err != nil {
		return nil, &OracleError{Stage: "sentiment", Raw: raw, Err: err}
	}
	switch report.Sentiment {
	case "bullish", "bearish", "neutral":
	default:
		report.Sentiment = "neutral"
	}
	report.Score = clamp(report.Score, -100, 100)
	return &report, nil
}

// decodeInto extracts the JSON object from free-form model output and
// unmarshals it strictly into out.
func decodeInto(raw string, out interface{}) error {
	payload, err := extractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

// extractJSON pulls the first balanced JSON object out of model text,
// tolerating markdown code fences and prose around it.
func extractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	// Strip ```json ... ``` fences
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
