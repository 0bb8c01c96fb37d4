package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/scanner"
	"kis-trading-bot/internal/trader"
)

// Repository provides data access for the trading engine. It satisfies
// trader.Recorder, trader.StatsRecorder, scanner.CycleStore, and
// scanner.HintSource.
type Repository struct {
	db *DB
}

// NewRepository wraps a DB
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck pings the database
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// RecordTrade inserts one completed order
func (r *Repository) RecordTrade(ctx context.Context, t trader.Trade) error {
	query := `
		INSERT INTO trades (symbol, market, exchange, side, quantity, price, amount_krw, strategy, style, profit_pct, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		t.Symbol, string(t.Market), t.Exchange, t.Side, t.Quantity,
		t.Price, t.AmountKRW, t.Strategy, string(t.Style), t.ProfitPct, t.At,
	)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// RecentTrades returns the latest trades, newest first
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]trader.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT symbol, market, exchange, side, quantity, price, amount_krw, strategy, style, profit_pct, executed_at
		FROM trades
		ORDER BY executed_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var out []trader.Trade
	for rows.Next() {
		var t trader.Trade
		var mkt, style string
		if err := rows.Scan(&t.Symbol, &mkt, &t.Exchange, &t.Side, &t.Quantity,
			&t.Price, &t.AmountKRW, &t.Strategy, &style, &t.ProfitPct, &t.At); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Market = market.ID(mkt)
		t.Style = trader.TradeStyle(style)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveCycle persists one scan cycle record with its per-target verdicts
func (r *Repository) SaveCycle(ctx context.Context, c scanner.Cycle) error {
	results, err := json.Marshal(c.Results)
	if err != nil {
		return fmt.Errorf("encoding cycle results: %w", err)
	}
	query := `
		INSERT INTO scan_cycles (id, market, started_at, finished_at, targets, analyzed, candidates, selected, results)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		c.ID, string(c.Market), c.StartedAt, c.FinishedAt,
		c.Targets, c.Analyzed, c.Candidates, c.Selected, results,
	)
	if err != nil {
		return fmt.Errorf("inserting scan cycle: %w", err)
	}
	return nil
}

// LatestCycle returns the most recently finished scan cycle, or nil
// when none has run yet.
func (r *Repository) LatestCycle(ctx context.Context) (*scanner.Cycle, error) {
	query := `
		SELECT id, market, started_at, finished_at, targets, analyzed, candidates, selected, results
		FROM scan_cycles
		ORDER BY finished_at DESC
		LIMIT 1
	`
	var c scanner.Cycle
	var mkt string
	var results []byte
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&c.ID, &mkt, &c.StartedAt, &c.FinishedAt,
		&c.Targets, &c.Analyzed, &c.Candidates, &c.Selected, &results,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest cycle: %w", err)
	}
	c.Market = market.ID(mkt)
	if len(results) > 0 {
		if err := json.Unmarshal(results, &c.Results); err != nil {
			return nil, fmt.Errorf("decoding cycle results: %w", err)
		}
	}
	return &c, nil
}

// LoadSettings returns every persisted toggle
func (r *Repository) LoadSettings(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key, enabled FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		var enabled bool
		if err := rows.Scan(&key, &enabled); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		out[key] = enabled
	}
	return out, rows.Err()
}

// SaveSetting upserts one toggle
func (r *Repository) SaveSetting(ctx context.Context, key string, enabled bool) error {
	query := `
		INSERT INTO settings (key, enabled, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET enabled = $2, updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Pool.Exec(ctx, query, key, enabled)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

// RecordStrategyResult folds one closed position into the per-strategy
// tally.
func (r *Repository) RecordStrategyResult(ctx context.Context, strategy string, win bool, profitPct float64) error {
	wins := 0
	if win {
		wins = 1
	}
	query := `
		INSERT INTO strategy_stats (strategy, trades, wins, total_profit_pct, updated_at)
		VALUES ($1, 1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (strategy) DO UPDATE SET
			trades = strategy_stats.trades + 1,
			wins = strategy_stats.wins + $2,
			total_profit_pct = strategy_stats.total_profit_pct + $3,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.Pool.Exec(ctx, query, strategy, wins, profitPct)
	if err != nil {
		return fmt.Errorf("updating strategy stats: %w", err)
	}
	return nil
}

// StrategyHints summarizes the tally for the screening prompt. Errors
// degrade to no hints; the scan must not stall on a stats query.
func (r *Repository) StrategyHints(ctx context.Context) []string {
	query := `
		SELECT strategy, trades, wins, total_profit_pct
		FROM strategy_stats
		WHERE trades > 0
		ORDER BY strategy
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		r.db.logger.Warn("strategy hints query failed", "error", err)
		return nil
	}
	defer rows.Close()

	var hints []string
	for rows.Next() {
		var strategy string
		var trades, wins int
		var totalProfit float64
		if err := rows.Scan(&strategy, &trades, &wins, &totalProfit); err != nil {
			r.db.logger.Warn("strategy hints scan failed", "error", err)
			return hints
		}
		hints = append(hints, fmt.Sprintf("%s: %d trades, %.0f%% wins, avg %+.2f%%",
			strategy, trades, float64(wins)/float64(trades)*100, totalProfit/float64(trades)))
	}
	return hints
}
