// Package price implements the price oracle (component C3): cached USD
// prices for a network's native token and its default settlement asset,
// refreshed in the background and falling back to the last known (or a
// static) value whenever the upstream feed is unavailable. Downstream
// consumers divide by these values, so a price oracle must never hand back
// zero or a non-finite number.
package price

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// staticFallback is used when a network has no live quote and none was ever
// cached — demo/testnet payments should never hard-fail on pricing.
const staticFallback = 1.0

// Fetcher retrieves a live USD price for an asset on a network. Implemented
// against whatever upstream feed is configured; Oracle holds no opinion on
// the transport.
type Fetcher interface {
	FetchNativePriceUSD(ctx context.Context, network string) (float64, error)
	FetchAssetPriceUSD(ctx context.Context, network string) (float64, error)
}

type cacheEntry struct {
	value     float64
	expiresAt time.Time
}

// StaticPrices lists the fixed USD prices used for testnets (other than
// Filecoin calibration, which keeps live pricing because its gas economics
// are the whole point of exercising the FEVM carve-out).
type StaticPrices struct {
	NativeUSD float64
	AssetUSD  float64
}

// Oracle is the cached price lookup. Safe for concurrent use.
type Oracle struct {
	fetcher Fetcher
	logger  *zap.Logger
	ttl     time.Duration

	testnets     map[string]bool
	staticPrices map[string]StaticPrices

	mu         sync.Mutex
	nativeLRU  *lru.Cache[string, cacheEntry]
	assetLRU   *lru.Cache[string, cacheEntry]
	stopRefresh chan struct{}
}

// New builds an Oracle. testnets/staticPrices key by network name; a
// network absent from testnets is treated as mainnet (always live-priced).
func New(fetcher Fetcher, logger *zap.Logger, ttl time.Duration, testnets map[string]bool, staticPrices map[string]StaticPrices) (*Oracle, error) {
	nativeLRU, err := lru.New[string, cacheEntry](256)
	if err != nil {
		return nil, fmt.Errorf("price oracle: %w", err)
	}
	assetLRU, err := lru.New[string, cacheEntry](256)
	if err != nil {
		return nil, fmt.Errorf("price oracle: %w", err)
	}
	return &Oracle{
		fetcher:      fetcher,
		logger:       logger,
		ttl:          ttl,
		testnets:     testnets,
		staticPrices: staticPrices,
		nativeLRU:    nativeLRU,
		assetLRU:     assetLRU,
	}, nil
}

// shortCircuits reports whether network should skip live pricing. Filecoin's
// testnet is deliberately excluded: its gas economics are the reason the
// fee engine carves it out, and that carve-out needs live numbers to mean
// anything in a demo.
func (o *Oracle) shortCircuits(network string) bool {
	if !o.testnets[network] {
		return false
	}
	return network != "filecoin-calibration"
}

// GetNativePriceUSD returns the network's native token USD price. Never
// returns zero or a non-finite value: a cache hit returns the cached value,
// a cache miss refreshes synchronously, and a failed or non-positive fetch
// falls back to the last cached value (even if expired) or, when there is
// none, to the static price.
func (o *Oracle) GetNativePriceUSD(ctx context.Context, network string) (float64, error) {
	return o.get(ctx, network, o.nativeLRU, o.fetcher.FetchNativePriceUSD, func() float64 { return o.staticFor(network).NativeUSD })
}

// GetPaymentTokenPriceUSD returns the network's default settlement asset USD price.
func (o *Oracle) GetPaymentTokenPriceUSD(ctx context.Context, network string) (float64, error) {
	return o.get(ctx, network, o.assetLRU, o.fetcher.FetchAssetPriceUSD, func() float64 { return o.staticFor(network).AssetUSD })
}

func (o *Oracle) staticFor(network string) StaticPrices {
	if sp, ok := o.staticPrices[network]; ok {
		return sp
	}
	return StaticPrices{NativeUSD: staticFallback, AssetUSD: staticFallback}
}

func (o *Oracle) get(ctx context.Context, network string, cache *lru.Cache[string, cacheEntry], fetch func(context.Context, string) (float64, error), fallback func() float64) (float64, error) {
	if o.shortCircuits(network) {
		return sanitize(fallback()), nil
	}

	o.mu.Lock()
	if entry, ok := cache.Get(network); ok && time.Now().Before(entry.expiresAt) {
		o.mu.Unlock()
		return entry.value, nil
	}
	o.mu.Unlock()

	value, err := fetch(ctx, network)
	if err != nil || !finite(value) {
		o.logger.Warn("price fetch failed, falling back", zap.String("network", network), zap.Error(err))
		o.mu.Lock()
		if entry, ok := cache.Get(network); ok {
			o.mu.Unlock()
			return entry.value, nil
		}
		o.mu.Unlock()
		return sanitize(fallback()), nil
	}

	o.mu.Lock()
	cache.Add(network, cacheEntry{value: value, expiresAt: time.Now().Add(o.ttl)})
	o.mu.Unlock()
	return value, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func sanitize(v float64) float64 {
	if !finite(v) {
		return staticFallback
	}
	return v
}

// StartBackgroundRefresh periodically repopulates cache entries for the
// given networks until ctx is cancelled, so a cache miss under load is rare
// rather than the common case.
func (o *Oracle) StartBackgroundRefresh(ctx context.Context, networks []string, interval time.Duration) {
	o.stopRefresh = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopRefresh:
				return
			case <-ticker.C:
				for _, network := range networks {
					if o.shortCircuits(network) {
						continue
					}
					if _, err := o.GetNativePriceUSD(ctx, network); err != nil {
						o.logger.Warn("background native price refresh failed", zap.String("network", network), zap.Error(err))
					}
					if _, err := o.GetPaymentTokenPriceUSD(ctx, network); err != nil {
						o.logger.Warn("background asset price refresh failed", zap.String("network", network), zap.Error(err))
					}
				}
			}
		}
	}()
}

// Stop halts the background refresher started by StartBackgroundRefresh.
func (o *Oracle) Stop() {
	if o.stopRefresh != nil {
		close(o.stopRefresh)
	}
}
