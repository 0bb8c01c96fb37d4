package kis

import (
	"context"

	"kis-trading-bot/internal/market"
)

// Broker is the surface of the KIS open API the engine depends on.
// The real client and the test mock both implement it.
type Broker interface {
	// Quote fetches the live price snapshot for one symbol
	Quote(ctx context.Context, mkt market.ID, exchange, symbol string) (*Quote, error)

	// Rankings returns the market's volume/mover ranking filtered to
	// entries at or below maxPrice in local currency. maxPrice <= 0
	// means unbounded. At most limit rows are returned.
	Rankings(ctx context.Context, mkt market.ID, maxPrice float64, limit int) ([]Ranked, error)

	// Balance returns cash and every held position, domestic and overseas
	Balance(ctx context.Context) (*Balance, error)

	// AvailableCash returns the integrated-margin orderable amounts
	AvailableCash(ctx context.Context) (*CashSummary, error)

	// PlaceOrder submits an order and returns the broker's acknowledgement
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// CancelOrder cancels the unfilled remainder of an order
	CancelOrder(ctx context.Context, ord PendingOrder) error

	// PendingOrders lists unfilled orders across domestic and overseas books
	PendingOrders(ctx context.Context) ([]PendingOrder, error)

	// LotSize returns the minimum order unit for a symbol
	LotSize(ctx context.Context, exchange, symbol string) (int64, error)
}
