package trader

import (
	"context"
	"time"

	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
)

// OrderReaper cancels limit orders that have rested unfilled past the
// timeout, freeing their budget for the next cycle.
type OrderReaper struct {
	book     *Book
	broker   kis.Broker
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger
}

// NewOrderReaper builds a reaper
func NewOrderReaper(book *Book, broker kis.Broker, interval, timeout time.Duration) *OrderReaper {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OrderReaper{
		book:     book,
		broker:   broker,
		interval: interval,
		timeout:  timeout,
		logger:   logging.WithComponent("order-reaper"),
	}
}

// Run sweeps until the context is cancelled
func (r *OrderReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("order reaper started", "interval", r.interval.String(), "timeout", r.timeout.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("order reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx, time.Now())
		}
	}
}

// Sweep cancels every broker-reported unfilled order older than the
// timeout. Exported so tests can drive the reaper directly.
func (r *OrderReaper) Sweep(ctx context.Context, now time.Time) {
	open, err := r.broker.PendingOrders(ctx)
	if err != nil {
		r.logger.Warn("pending order inquiry failed", "error", err)
		return
	}

	for _, ord := range open {
		if ctx.Err() != nil {
			return
		}
		age := now.Sub(ord.OrderedAt)
		if age <= r.timeout {
			continue
		}

		if err := r.broker.CancelOrder(ctx, ord); err != nil {
			// Most cancel failures mean the order filled in the gap
			r.logger.Warn("cancel failed, order likely filled",
				"order_no", ord.OrderNo, "symbol", ord.Symbol, "error", err)
			continue
		}

		r.logger.Info("stale order cancelled",
			"order_no", ord.OrderNo, "symbol", ord.Symbol, "age", age.Round(time.Second).String())

		// Buy orders belong to a tracked candidate: put it back in the
		// pool so a later trigger can retry.
		if ord.Side == kis.Buy {
			if err := r.book.Transition(ord.Symbol, CandWatching); err == nil {
				r.logger.Info("candidate reverted to watching", "symbol", ord.Symbol)
			}
		}
	}
}
