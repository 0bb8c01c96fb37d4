package marketdata

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
)

// Headline is one news item from a symbol's feed
type Headline struct {
	Title       string
	Link        string
	PublishedAt string
}

// headlinesPerSymbol caps how many items are kept from each feed
const headlinesPerSymbol = 3

// marketNewsSymbols are the Yahoo tickers polled for each market's
// off-hours news sweep: a handful of index leaders per market.
var marketNewsSymbols = map[market.ID][]string{
	market.KR: {"005930.KS", "000660.KS", "373220.KS"},
	market.JP: {"7203.T", "6758.T", "8306.T"},
	market.CN: {"600519.SS", "601318.SS", "000858.SZ"},
	market.HK: {"0700.HK", "9988.HK", "0005.HK"},
	market.US: {"AAPL", "MSFT", "NVDA"},
}

// NewsClient fetches headlines from the Yahoo Finance RSS feed
type NewsClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewNewsClient creates a headline client
func NewNewsClient() *NewsClient {
	return &NewsClient{
		baseURL:    "https://feeds.finance.yahoo.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logging.WithComponent("news"),
	}
}

// NewNewsClientWithBase creates a client against a custom endpoint,
// used by tests.
func NewNewsClientWithBase(baseURL string) *NewsClient {
	c := NewNewsClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// SymbolHeadlines fetches the latest items for one Yahoo ticker
func (c *NewsClient) SymbolHeadlines(ctx context.Context, yahooSymbol string) ([]Headline, error) {
	params := url.Values{}
	params.Set("s", yahooSymbol)
	params.Set("region", "US")
	params.Set("lang", "en-US")

	endpoint := fmt.Sprintf("%s/rss/2.0/headline?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building news request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching news %s: %w", yahooSymbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading news %s: %w", yahooSymbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news %s: http %d", yahooSymbol, resp.StatusCode)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parsing news %s: %w", yahooSymbol, err)
	}

	items := feed.Channel.Items
	if len(items) > headlinesPerSymbol {
		items = items[:headlinesPerSymbol]
	}
	out := make([]Headline, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		out = append(out, Headline{
			Title:       title,
			Link:        item.Link,
			PublishedAt: item.PubDate,
		})
	}
	return out, nil
}

// Headlines sweeps the market's leader symbols and returns their
// combined headline titles. Per-symbol failures are logged and skipped;
// an empty result just means no sentiment refresh this pass.
func (c *NewsClient) Headlines(ctx context.Context, mkt market.ID) []string {
	var out []string
	for _, symbol := range marketNewsSymbols[mkt] {
		if ctx.Err() != nil {
			return out
		}
		items, err := c.SymbolHeadlines(ctx, symbol)
		if err != nil {
			c.logger.Warn("headline fetch failed", "symbol", symbol, "error", err)
			continue
		}
		for _, h := range items {
			out = append(out, h.Title)
		}
	}
	return out
}
