package scanner

import (
	"context"
	"strings"

	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/marketdata"
	"kis-trading-bot/internal/settings"
)

// USScreener tops up thin US target lists from a public screener
type USScreener interface {
	ScreenUSActives(ctx context.Context, maxPrice float64, limit int) []marketdata.ScreenedStock
}

// leverageMarkers flag leveraged and inverse products, which are
// excluded from scans unless the operator allows them.
var leverageMarkers = []string{
	"레버리지", "인버스", "곱버스",
	"LEVERAGE", "INVERSE", "2X", "3X", "BULL", "BEAR", "ULTRA",
}

// minUSTargets triggers the screener top-up when broker rankings for
// the US session come back thin.
const minUSTargets = 10

// TargetSelector assembles the per-market analysis list: broker volume
// rankings bounded by orderable cash, merged with the operator
// watchlist, topped up from a screener for the US session.
type TargetSelector struct {
	broker     kis.Broker
	screener   USScreener
	rates      RateSource
	gates      settings.Store
	watchlist  []string
	maxTargets int
	logger     *logging.Logger
}

// NewTargetSelector builds a selector. screener may be nil.
func NewTargetSelector(broker kis.Broker, screener USScreener, rates RateSource, gates settings.Store, watchlist []string, maxTargets int) *TargetSelector {
	if maxTargets <= 0 {
		maxTargets = 50
	}
	return &TargetSelector{
		broker:     broker,
		screener:   screener,
		rates:      rates,
		gates:      gates,
		watchlist:  watchlist,
		maxTargets: maxTargets,
		logger:     logging.WithComponent("target-selector"),
	}
}

// Select builds the target list for one market. cashKRW bounds the
// per-share price so every target is actually affordable.
func (s *TargetSelector) Select(ctx context.Context, info market.Info, cashKRW float64) []Target {
	fxRate := s.rates.Rate(ctx, info.ID)
	maxPriceLocal := 0.0
	if cashKRW > 0 && fxRate > 0 {
		maxPriceLocal = cashKRW / fxRate
	}

	allowLeverage := s.gates.Enabled(ctx, settings.AllowLeverage)
	seen := make(map[string]bool)
	var targets []Target

	admit := func(t Target) {
		if len(targets) >= s.maxTargets || seen[t.Symbol] {
			return
		}
		if !allowLeverage && isLeveraged(t.Name) {
			s.logger.Info("skipping leveraged product", "symbol", t.Symbol, "name", t.Name)
			return
		}
		seen[t.Symbol] = true
		targets = append(targets, t)
	}

	rows, err := s.broker.Rankings(ctx, info.ID, maxPriceLocal, s.maxTargets)
	if err != nil {
		s.logger.Warn("ranking inquiry failed", "market", string(info.ID), "error", err)
	}
	for _, row := range rows {
		exchange := row.Exchange
		if exchange == "" {
			exchange = info.Exchanges[0]
		}
		admit(Target{
			Symbol: row.Symbol, Name: row.Name, Market: info.ID,
			Exchange: exchange, Price: row.Price, Source: SourceRanking,
		})
	}

	for _, entry := range s.watchlist {
		mkt, symbol, ok := parseWatchlistEntry(entry)
		if !ok || mkt != info.ID {
			continue
		}
		exchange := info.Exchanges[0]
		if mkt == market.US {
			exchange = kis.USExchangeFor(symbol)
		}
		admit(Target{Symbol: symbol, Market: mkt, Exchange: exchange, Source: SourceWatchlist})
	}

	// The broker's overseas rankings can come back nearly empty outside
	// regular hours; the screener keeps the US scan supplied.
	if info.ID == market.US && s.screener != nil && len(targets) < minUSTargets {
		for _, row := range s.screener.ScreenUSActives(ctx, maxPriceLocal, s.maxTargets-len(targets)) {
			admit(Target{
				Symbol: row.Symbol, Name: row.Name, Market: market.US,
				Exchange: kis.USExchangeFor(row.Symbol), Price: row.Price, Source: SourceScreener,
			})
		}
	}

	s.logger.Info("targets selected",
		"market", string(info.ID), "count", len(targets), "max_price_local", maxPriceLocal)
	return targets
}

// parseWatchlistEntry splits a "MARKET:SYMBOL" entry
func parseWatchlistEntry(entry string) (market.ID, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return market.ID(strings.ToUpper(parts[0])), parts[1], true
}

func isLeveraged(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range leverageMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
