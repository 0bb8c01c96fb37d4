package fx

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
)

const cacheTTL = time.Hour

// Source provides the latest price for an FX ticker
type Source interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// yahooPairs maps each market's currency to its KRW conversion ticker
var yahooPairs = map[market.ID]string{
	market.US: "KRW=X",
	market.JP: "JPYKRW=X",
	market.CN: "CNYKRW=X",
	market.HK: "HKDKRW=X",
}

// defaultRates are last-resort conversion rates when both the live
// fetch and the cache fail.
var defaultRates = map[market.ID]float64{
	market.KR: 1,
	market.US: 1400,
	market.JP: 9.5,
	market.CN: 195,
	market.HK: 180,
}

type cachedRate struct {
	rate    float64
	fetched time.Time
}

// Service resolves local-currency-to-KRW rates. Fresh rates are cached
// for an hour in Redis (shared across restarts) with an in-memory copy
// as backup. Resolution never fails: stale cache beats the default,
// the default beats nothing.
type Service struct {
	source Source
	rdb    *redis.Client // nil when Redis is disabled
	logger *logging.Logger

	mu     sync.Mutex
	memory map[market.ID]cachedRate
}

// NewService creates an FX service. rdb may be nil.
func NewService(source Source, rdb *redis.Client) *Service {
	return &Service{
		source: source,
		rdb:    rdb,
		logger: logging.WithComponent("fx"),
		memory: make(map[market.ID]cachedRate),
	}
}

// Rate returns the KRW value of one unit of the market's currency
func (s *Service) Rate(ctx context.Context, mkt market.ID) float64 {
	if mkt == market.KR {
		return 1
	}

	if rate, ok := s.cached(ctx, mkt, cacheTTL); ok {
		return rate
	}

	pair, ok := yahooPairs[mkt]
	if ok {
		rate, err := s.source.LastPrice(ctx, pair)
		if err == nil && rate > 0 {
			s.store(ctx, mkt, rate)
			return rate
		}
		s.logger.Warn("fx fetch failed", "market", string(mkt), "pair", pair, "error", err)
	}

	// Stale cache is still better than a hardcoded default
	if rate, ok := s.cached(ctx, mkt, 0); ok {
		s.logger.Info("using stale fx rate", "market", string(mkt))
		return rate
	}

	def := defaultRates[mkt]
	if def == 0 {
		def = defaultRates[market.US]
	}
	s.logger.Warn("using default fx rate", "market", string(mkt), "rate", def)
	return def
}

// cached looks up the rate, first in Redis then in memory. maxAge 0
// accepts any age.
func (s *Service) cached(ctx context.Context, mkt market.ID, maxAge time.Duration) (float64, bool) {
	if s.rdb != nil {
		key := redisKey(mkt)
		if maxAge > 0 {
			// Redis entries expire at the TTL, presence implies freshness
			if val, err := s.rdb.Get(ctx, key).Result(); err == nil {
				if rate, err := strconv.ParseFloat(val, 64); err == nil && rate > 0 {
					return rate, true
				}
			}
		} else {
			if val, err := s.rdb.Get(ctx, staleKey(mkt)).Result(); err == nil {
				if rate, err := strconv.ParseFloat(val, 64); err == nil && rate > 0 {
					return rate, true
				}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.memory[mkt]
	if !ok {
		return 0, false
	}
	if maxAge > 0 && time.Since(entry.fetched) > maxAge {
		return 0, false
	}
	return entry.rate, true
}

func (s *Service) store(ctx context.Context, mkt market.ID, rate float64) {
	s.mu.Lock()
	s.memory[mkt] = cachedRate{rate: rate, fetched: time.Now()}
	s.mu.Unlock()

	if s.rdb == nil {
		return
	}
	val := strconv.FormatFloat(rate, 'f', 6, 64)
	if err := s.rdb.Set(ctx, redisKey(mkt), val, cacheTTL).Err(); err != nil {
		s.logger.Warn("fx cache write failed", "error", err)
		return
	}
	// The stale copy never expires, it backs the fallback chain
	s.rdb.Set(ctx, staleKey(mkt), val, 0)
}

func redisKey(mkt market.ID) string {
	return fmt.Sprintf("fx:rate:%s", mkt)
}

func staleKey(mkt market.ID) string {
	return fmt.Sprintf("fx:rate:stale:%s", mkt)
}
