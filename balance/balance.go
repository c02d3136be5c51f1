// Package balance implements the balance checker (component C6): a
// short-TTL cached ERC-20 balanceOf lookup used once during verification and
// once, defensively, just before a settlement is submitted. A broken price
// or RPC feed must never override a successful verification, so failures
// here are swallowed rather than propagated upward.
package balance

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/awesome-doge/settlement-core/go/router"
)

// Result is the outcome of a single balance check.
type Result struct {
	HasSufficient bool
	Balance       *big.Int
	Required      *big.Int
	Cached        bool
}

type cacheEntry struct {
	balance   *big.Int
	expiresAt time.Time
}

// Checker caches balanceOf lookups per (payer, token).
type Checker struct {
	logger *zap.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a balance Checker with the given cache TTL.
func New(logger *zap.Logger, ttl time.Duration) *Checker {
	return &Checker{logger: logger, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// CheckBalance returns whether payer holds at least required units of token,
// reading through client. On any RPC failure it logs and returns a
// fail-permissive Result with HasSufficient=true so a broken balance oracle
// never blocks an otherwise-valid payment; verification is not the place to
// enforce funds availability strictly — settlement's own on-chain transfer
// is the final arbiter.
func (c *Checker) CheckBalance(ctx context.Context, client router.Client, payer, token common.Address, required *big.Int) Result {
	key := payer.Hex() + ":" + token.Hex()

	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return Result{HasSufficient: entry.balance.Cmp(required) >= 0, Balance: entry.balance, Required: required, Cached: true}
	}
	c.mu.Unlock()

	balance, err := client.GetBalance(ctx, payer, token)
	if err != nil {
		c.logger.Warn("balance check failed, treating as sufficient", zap.String("payer", payer.Hex()), zap.String("token", token.Hex()), zap.Error(err))
		return Result{HasSufficient: true, Balance: nil, Required: required, Cached: false}
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{balance: balance, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return Result{HasSufficient: balance.Cmp(required) >= 0, Balance: balance, Required: required, Cached: false}
}
