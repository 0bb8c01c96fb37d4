package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
)

// Candle is one OHLCV bar
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Timeframe pairs a bar interval with its lookback range
type Timeframe struct {
	Interval string // "5m", "1h", "1d"
	Range    string // "5d", "1mo", "1y"
}

// StandardTimeframes are the three views every symbol is analyzed on,
// most granular first.
var StandardTimeframes = []Timeframe{
	{Interval: "5m", Range: "5d"},
	{Interval: "1h", Range: "1mo"},
	{Interval: "1d", Range: "1y"},
}

// YahooClient fetches candles, last prices, and screener rows from the
// Yahoo Finance chart API.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewYahooClient creates a market-data client
func NewYahooClient() *YahooClient {
	return &YahooClient{
		baseURL:    "https://query1.finance.yahoo.com",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logging.WithComponent("marketdata"),
	}
}

// NewYahooClientWithBase creates a client against a custom endpoint,
// used by tests.
func NewYahooClientWithBase(baseURL string) *YahooClient {
	c := NewYahooClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// kosdaqCodes are the KOSDAQ-listed symbols in the scan universe.
// Korean symbols outside this set resolve as KOSPI.
var kosdaqCodes = map[string]bool{
	"247540": true, // EcoPro BM
	"086520": true, // EcoPro
	"028300": true, // HLB
	"196170": true, // Alteogen
	"277810": true, // Rainbow Robotics
	"058470": true, // LEENO Industrial
	"214450": true, // Pharma Research
	"214150": true, // Classys
	"180400": true, // Cancer Rop
}

// YahooSymbol maps a broker symbol to its Yahoo ticker
func YahooSymbol(mkt market.ID, exchange, symbol string) string {
	switch mkt {
	case market.KR:
		if kosdaqCodes[symbol] {
			return symbol + ".KQ"
		}
		return symbol + ".KS"
	case market.JP:
		return symbol + ".T"
	case market.CN:
		if exchange == "SZAA" {
			return symbol + ".SZ"
		}
		return symbol + ".SS"
	case market.HK:
		// Hong Kong tickers are zero-padded to four digits
		s := symbol
		for len(s) < 4 {
			s = "0" + s
		}
		return s + ".HK"
	default:
		return symbol
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Candles fetches OHLCV bars for a Yahoo ticker. Bars with a missing
// close are dropped.
func (c *YahooClient) Candles(ctx context.Context, yahooSymbol string, tf Timeframe) ([]Candle, error) {
	params := url.Values{}
	params.Set("interval", tf.Interval)
	params.Set("range", tf.Range)

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(yahooSymbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building chart request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching chart %s: %w", yahooSymbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chart %s: %w", yahooSymbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart %s: http %d", yahooSymbol, resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing chart %s: %w", yahooSymbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s", yahooSymbol, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	var candles []Candle
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		candle := Candle{
			Time:  time.Unix(ts, 0),
			Close: quote.Close[i],
		}
		if i < len(quote.Open) {
			candle.Open = quote.Open[i]
		}
		if i < len(quote.High) {
			candle.High = quote.High[i]
		}
		if i < len(quote.Low) {
			candle.Low = quote.Low[i]
		}
		if i < len(quote.Volume) {
			candle.Volume = quote.Volume[i]
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// LastPrice returns the most recent daily close for a Yahoo ticker.
// Used for FX pairs and benchmark indices.
func (c *YahooClient) LastPrice(ctx context.Context, yahooSymbol string) (float64, error) {
	candles, err := c.Candles(ctx, yahooSymbol, Timeframe{Interval: "1d", Range: "5d"})
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no price data for %s", yahooSymbol)
	}
	return candles[len(candles)-1].Close, nil
}

// ScreenedStock is one row from the affordability screen
type ScreenedStock struct {
	Symbol string
	Name   string
	Price  float64
}

type screenerResponse struct {
	Finance struct {
		Result []struct {
			Quotes []struct {
				Symbol    string  `json:"symbol"`
				ShortName string  `json:"shortName"`
				Price     float64 `json:"regularMarketPrice"`
			} `json:"quotes"`
		} `json:"result"`
	} `json:"finance"`
}

// usScreenFallback keeps the US scan alive when the screener endpoint
// is rate limited or changes shape.
var usScreenFallback = []ScreenedStock{
	{Symbol: "SOFI", Name: "SoFi Technologies"},
	{Symbol: "PLTR", Name: "Palantir Technologies"},
	{Symbol: "F", Name: "Ford Motor"},
	{Symbol: "T", Name: "AT&T"},
	{Symbol: "PFE", Name: "Pfizer"},
	{Symbol: "INTC", Name: "Intel"},
	{Symbol: "AAL", Name: "American Airlines"},
	{Symbol: "CCL", Name: "Carnival"},
	{Symbol: "NIO", Name: "NIO"},
	{Symbol: "RIVN", Name: "Rivian Automotive"},
	{Symbol: "LCID", Name: "Lucid Group"},
	{Symbol: "SNAP", Name: "Snap"},
}

// ScreenUSActives pages through Yahoo's most-actives screener and keeps
// rows priced at or below maxPrice. Falls back to a fixed list when the
// endpoint fails.
func (c *YahooClient) ScreenUSActives(ctx context.Context, maxPrice float64, limit int) []ScreenedStock {
	var out []ScreenedStock
	const pageSize = 100

	for offset := 0; offset < 200 && len(out) < limit; offset += pageSize {
		params := url.Values{}
		params.Set("scrIds", "most_actives")
		params.Set("count", fmt.Sprintf("%d", pageSize))
		params.Set("start", fmt.Sprintf("%d", offset))

		endpoint := fmt.Sprintf("%s/v1/finance/screener/predefined/saved?%s", c.baseURL, params.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			break
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("screener request failed", "error", err)
			break
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			c.logger.Warn("screener unavailable", "status", resp.StatusCode)
			break
		}

		var parsed screenerResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.logger.Warn("screener parse failed", "error", err)
			break
		}
		if len(parsed.Finance.Result) == 0 {
			break
		}

		quotes := parsed.Finance.Result[0].Quotes
		if len(quotes) == 0 {
			break
		}
		for _, q := range quotes {
			if q.Price <= 0 || (maxPrice > 0 && q.Price > maxPrice) {
				continue
			}
			out = append(out, ScreenedStock{Symbol: q.Symbol, Name: q.ShortName, Price: q.Price})
			if len(out) >= limit {
				break
			}
		}
	}

	if len(out) == 0 {
		c.logger.Info("screener returned nothing, using fallback list")
		for _, s := range usScreenFallback {
			out = append(out, s)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
