package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kis-trading-bot/internal/market"
)

func rssBody(titles ...string) string {
	items := ""
	for _, t := range titles {
		items += fmt.Sprintf(
			"<item><title>%s</title><link>https://example.com/a</link><pubDate>Mon, 31 Aug 2026 09:00:00 +0000</pubDate></item>", t)
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel>` + items + `</channel></rss>`
}

func TestSymbolHeadlinesParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss/2.0/headline" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("s"); got != "AAPL" {
			t.Errorf("symbol param = %q, want AAPL", got)
		}
		fmt.Fprint(w, rssBody("Apple beats estimates", "New product event", "Supply update", "Old story", "Older story"))
	}))
	defer srv.Close()

	c := NewNewsClientWithBase(srv.URL)
	items, err := c.SymbolHeadlines(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("SymbolHeadlines: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want latest 3", len(items))
	}
	if items[0].Title != "Apple beats estimates" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[0].Link == "" || items[0].PublishedAt == "" {
		t.Errorf("item missing link or date: %+v", items[0])
	}
}

func TestSymbolHeadlinesErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewNewsClientWithBase(srv.URL)
	if _, err := c.SymbolHeadlines(context.Background(), "AAPL"); err == nil {
		t.Fatal("want error for http 429")
	}
}

func TestMarketHeadlinesSkipFailedSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the first US leader has a working feed
		if r.URL.Query().Get("s") != "AAPL" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, rssBody("Apple beats estimates", "New product event"))
	}))
	defer srv.Close()

	c := NewNewsClientWithBase(srv.URL)
	titles := c.Headlines(context.Background(), market.US)
	if len(titles) != 2 {
		t.Fatalf("titles = %v, want the two that fetched", titles)
	}
	if titles[0] != "Apple beats estimates" {
		t.Errorf("first title = %q", titles[0])
	}
}
