package kis

import (
	"context"
	"fmt"
	"sync"

	"kis-trading-bot/internal/market"
)

// MockBroker is an in-memory Broker for tests. Fields are plain maps
// keyed by symbol; error hooks let tests inject failures per call.
type MockBroker struct {
	mu sync.Mutex

	Quotes       map[string]*Quote
	RankingRows  map[market.ID][]Ranked
	Cash         CashSummary
	Held         []Position
	Pending      []PendingOrder
	LotSizes     map[string]int64

	QuoteErr  error
	OrderErr  error
	CancelErr error

	PlacedOrders    []OrderRequest
	CancelledOrders []string

	nextOrderNo int
}

// NewMockBroker returns an empty mock ready for test setup
func NewMockBroker() *MockBroker {
	return &MockBroker{
		Quotes:      make(map[string]*Quote),
		RankingRows: make(map[market.ID][]Ranked),
		LotSizes:    make(map[string]int64),
	}
}

func (m *MockBroker) Quote(_ context.Context, _ market.ID, _, symbol string) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no quote for %s", symbol)
	}
	copied := *q
	return &copied, nil
}

func (m *MockBroker) Rankings(_ context.Context, mkt market.ID, maxPrice float64, limit int) ([]Ranked, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Ranked
	for _, row := range m.RankingRows[mkt] {
		if maxPrice > 0 && row.Price > maxPrice {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockBroker) Balance(_ context.Context) (*Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Balance{
		CashKRW:   m.Cash.KRWAvailable,
		Positions: append([]Position(nil), m.Held...),
	}, nil
}

func (m *MockBroker) AvailableCash(_ context.Context) (*CashSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cash := m.Cash
	return &cash, nil
}

func (m *MockBroker) PlaceOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	m.PlacedOrders = append(m.PlacedOrders, req)
	m.nextOrderNo++
	return &OrderResult{OrderNo: fmt.Sprintf("MOCK%06d", m.nextOrderNo)}, nil
}

func (m *MockBroker) CancelOrder(_ context.Context, ord PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.CancelledOrders = append(m.CancelledOrders, ord.OrderNo)
	kept := m.Pending[:0]
	for _, p := range m.Pending {
		if p.OrderNo != ord.OrderNo {
			kept = append(kept, p)
		}
	}
	m.Pending = kept
	return nil
}

func (m *MockBroker) PendingOrders(_ context.Context) ([]PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingOrder(nil), m.Pending...), nil
}

func (m *MockBroker) LotSize(_ context.Context, exchange, symbol string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lot, ok := m.LotSizes[symbol]; ok {
		return lot, nil
	}
	return DefaultLotSize(exchange), nil
}
