package settings

import (
	"context"
	"sync"
)

// Runtime toggle keys. These gate engine phases without a restart and
// survive restarts when a persistent store backs them.
const (
	AutoScan      = "ENABLE_AUTO_SCAN"
	AutoBuy       = "ENABLE_AUTO_BUY"
	AutoSell      = "ENABLE_AUTO_SELL"
	OffMarket     = "ENABLE_OFFMARKET"
	NewsCollect   = "ENABLE_NEWS_COLLECT"
	AllowLeverage = "ALLOW_LEVERAGE"
)

// Defaults are the values used until an operator flips a toggle
var Defaults = map[string]bool{
	AutoScan:      true,
	AutoBuy:       false,
	AutoSell:      false,
	OffMarket:     true,
	NewsCollect:   true,
	AllowLeverage: false,
}

// Store reads and writes runtime toggles
type Store interface {
	Enabled(ctx context.Context, key string) bool
	SetEnabled(ctx context.Context, key string, on bool) error
	All(ctx context.Context) map[string]bool
}

// Memory is an in-process Store seeded from Defaults. An optional
// persist hook mirrors writes to durable storage.
type Memory struct {
	mu      sync.RWMutex
	values  map[string]bool
	persist func(ctx context.Context, key string, on bool) error
}

// NewMemory creates a store seeded with Defaults overlaid by initial
func NewMemory(initial map[string]bool) *Memory {
	values := make(map[string]bool, len(Defaults))
	for k, v := range Defaults {
		values[k] = v
	}
	for k, v := range initial {
		values[k] = v
	}
	return &Memory{values: values}
}

// OnChange registers a hook called after each successful write
func (m *Memory) OnChange(fn func(ctx context.Context, key string, on bool) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist = fn
}

func (m *Memory) Enabled(_ context.Context, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

func (m *Memory) SetEnabled(ctx context.Context, key string, on bool) error {
	m.mu.Lock()
	m.values[key] = on
	persist := m.persist
	m.mu.Unlock()

	if persist != nil {
		return persist(ctx, key, on)
	}
	return nil
}

func (m *Memory) All(_ context.Context) map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}
