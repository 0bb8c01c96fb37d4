package fx

import (
	"context"
	"errors"
	"testing"

	"kis-trading-bot/internal/market"
)

type stubSource struct {
	rates map[string]float64
	err   error
	calls int
}

func (s *stubSource) LastPrice(_ context.Context, symbol string) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.rates[symbol], nil
}

func TestRateFetchesAndCaches(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"KRW=X": 1385.5}}
	svc := NewService(src, nil)
	ctx := context.Background()

	if got := svc.Rate(ctx, market.US); got != 1385.5 {
		t.Fatalf("Rate(US) = %f, want 1385.5", got)
	}
	// Second call hits the cache
	if got := svc.Rate(ctx, market.US); got != 1385.5 {
		t.Fatalf("cached Rate(US) = %f", got)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
}

func TestRateKRIsAlwaysOne(t *testing.T) {
	src := &stubSource{err: errors.New("down")}
	svc := NewService(src, nil)

	if got := svc.Rate(context.Background(), market.KR); got != 1 {
		t.Errorf("Rate(KR) = %f, want 1", got)
	}
	if src.calls != 0 {
		t.Error("KR rate should not hit the source")
	}
}

func TestRateFallsBackToDefaultWhenSourceFails(t *testing.T) {
	src := &stubSource{err: errors.New("network down")}
	svc := NewService(src, nil)

	if got := svc.Rate(context.Background(), market.JP); got != 9.5 {
		t.Errorf("Rate(JP) with failing source = %f, want default 9.5", got)
	}
}

func TestRatePrefersStaleCacheOverDefault(t *testing.T) {
	src := &stubSource{rates: map[string]float64{"HKDKRW=X": 178.2}}
	svc := NewService(src, nil)
	ctx := context.Background()

	if got := svc.Rate(ctx, market.HK); got != 178.2 {
		t.Fatalf("initial Rate(HK) = %f", got)
	}

	// Source dies and the cached entry ages out of freshness
	src.err = errors.New("down")
	svc.mu.Lock()
	entry := svc.memory[market.HK]
	entry.fetched = entry.fetched.Add(-2 * cacheTTL)
	svc.memory[market.HK] = entry
	svc.mu.Unlock()

	if got := svc.Rate(ctx, market.HK); got != 178.2 {
		t.Errorf("stale Rate(HK) = %f, want cached 178.2 over default", got)
	}
}
