// Package gas implements the gas oracle (component C4): a cached wei gas
// price per network with the same caching discipline as the price oracle,
// clamped to a sane floor so a misbehaving RPC node can never hand the fee
// engine a zero or negative price.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// floorWei is the minimum gas price this oracle will ever hand back, roughly
// 0.01 gwei — low enough to never distort a real network's pricing, high
// enough to keep downstream division sane.
var floorWei = big.NewInt(10_000_000)

// Fetcher retrieves a live gas price for a network, in wei.
type Fetcher interface {
	FetchGasPriceWei(ctx context.Context, network string) (*big.Int, error)
}

type cacheEntry struct {
	value     *big.Int
	expiresAt time.Time
}

// Oracle is the cached gas-price lookup, consumed only by the fee engine.
type Oracle struct {
	fetcher Fetcher
	logger  *zap.Logger
	ttl     time.Duration

	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
}

// New builds a gas Oracle.
func New(fetcher Fetcher, logger *zap.Logger, ttl time.Duration) (*Oracle, error) {
	cache, err := lru.New[string, cacheEntry](256)
	if err != nil {
		return nil, fmt.Errorf("gas oracle: %w", err)
	}
	return &Oracle{fetcher: fetcher, logger: logger, ttl: ttl, cache: cache}, nil
}

// GetGasPrice returns the cached (or freshly fetched) gas price for network,
// clamped to floorWei.
func (o *Oracle) GetGasPrice(ctx context.Context, network string) (*big.Int, error) {
	o.mu.Lock()
	if entry, ok := o.cache.Get(network); ok && time.Now().Before(entry.expiresAt) {
		o.mu.Unlock()
		return new(big.Int).Set(entry.value), nil
	}
	o.mu.Unlock()

	value, err := o.fetcher.FetchGasPriceWei(ctx, network)
	if err != nil {
		o.logger.Warn("gas price fetch failed, falling back to cache or floor", zap.String("network", network), zap.Error(err))
		o.mu.Lock()
		if entry, ok := o.cache.Get(network); ok {
			o.mu.Unlock()
			return new(big.Int).Set(entry.value), nil
		}
		o.mu.Unlock()
		return new(big.Int).Set(floorWei), nil
	}

	value = clamp(value)

	o.mu.Lock()
	o.cache.Add(network, cacheEntry{value: value, expiresAt: time.Now().Add(o.ttl)})
	o.mu.Unlock()
	return new(big.Int).Set(value), nil
}

func clamp(v *big.Int) *big.Int {
	if v == nil || v.Cmp(floorWei) < 0 {
		return new(big.Int).Set(floorWei)
	}
	return v
}
