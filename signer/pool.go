// Package signer implements the signer pool (component C7): a bounded set
// of EVM accounts per network, leased out exclusively so that no two
// in-flight settlements can submit transactions from the same key at once
// and collide on nonce assignment. The pool is the single point of
// enforcement for per-key nonce discipline; callers never set nonces
// themselves.
package signer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awesome-doge/settlement-core/go/router"
)

// Outcome reports how a lease's in-flight settlement ended, so the pool can
// track consecutive failures for quarantine purposes.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// quarantineThreshold is the number of consecutive failures that puts a key
// into cooldown.
const quarantineThreshold = 3

type keyState struct {
	client              router.Client
	consecutiveFailures int
	quarantinedUntil    time.Time
}

// Pool leases router.Client instances out exclusively, per network, with a
// bounded FIFO wait queue: if every key for a network is leased, Acquire
// blocks until one is released or ctx/timeout expires.
type Pool struct {
	logger *zap.Logger

	mu    sync.Mutex
	keys  map[string][]*keyState // network -> keys
	avail map[string]chan *keyState
}

// New builds an empty pool. Register networks with AddClient before use.
func New(logger *zap.Logger) *Pool {
	return &Pool{
		logger: logger,
		keys:   make(map[string][]*keyState),
		avail:  make(map[string]chan *keyState),
	}
}

// AddClient registers client as one of the signing keys available for
// network. Call during startup only; the pool's channel-based queue is not
// safe to resize concurrently with in-flight leases.
func (p *Pool) AddClient(network string, client router.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ks := &keyState{client: client}
	p.keys[network] = append(p.keys[network], ks)

	ch, ok := p.avail[network]
	if !ok {
		// Capacity grows with registrations; channel is recreated each time
		// since Go channels cannot be resized. Startup-only, so the cost is
		// paid once per configured key, never during request handling.
		ch = make(chan *keyState, len(p.keys[network]))
		p.avail[network] = ch
	} else {
		old := ch
		ch = make(chan *keyState, len(p.keys[network]))
		close(old)
		for k := range old {
			ch <- k
		}
		p.avail[network] = ch
	}
	ch <- ks
}

// Lease is an exclusive hold on one signer key, scoped to a single
// settlement attempt.
type Lease struct {
	network string
	state   *keyState
	pool    *Pool
}

// Client returns the chain client bound to this lease's key.
func (l *Lease) Client() router.Client {
	return l.state.client
}

// Acquire blocks, FIFO, until a non-quarantined key is available for
// network or timeout elapses, then returns an exclusive Lease. Fails with
// NO_SIGNER_AVAILABLE on timeout.
func (p *Pool) Acquire(ctx context.Context, network string, timeout time.Duration) (*Lease, error) {
	p.mu.Lock()
	ch, ok := p.avail[network]
	if !ok || len(p.keys[network]) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("NO_SIGNER_AVAILABLE: no signer configured for network %q", network)
	}
	p.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ks, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("NO_SIGNER_AVAILABLE: pool closed for network %q", network)
			}
			if p.quarantined(ks) {
				// Put it back at the tail and keep waiting; this key simply
				// is not counted as available right now. The brief sleep
				// keeps an all-quarantined pool from busy-spinning.
				ch <- ks
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return &Lease{network: network, state: ks, pool: p}, nil
		case <-deadline.C:
			return nil, fmt.Errorf("NO_SIGNER_AVAILABLE: timed out waiting for a signer on %q", network)
		case <-ctx.Done():
			return nil, fmt.Errorf("NO_SIGNER_AVAILABLE: %w", ctx.Err())
		}
	}
}

func (p *Pool) quarantined(ks *keyState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().Before(ks.quarantinedUntil)
}

// Release returns the leased key to the pool, recording outcome. Consecutive
// failures quarantine the key for quarantineTTL; any success resets the
// counter.
func (p *Pool) Release(lease *Lease, outcome Outcome, quarantineTTL time.Duration) {
	p.mu.Lock()
	switch outcome {
	case OutcomeSuccess:
		lease.state.consecutiveFailures = 0
	case OutcomeFailure:
		lease.state.consecutiveFailures++
		if lease.state.consecutiveFailures >= quarantineThreshold {
			lease.state.quarantinedUntil = time.Now().Add(quarantineTTL)
			p.logger.Warn("signer key quarantined after consecutive failures",
				zap.String("network", lease.network),
				zap.String("address", lease.state.client.Address().Hex()),
				zap.Int("consecutiveFailures", lease.state.consecutiveFailures),
			)
		}
	}
	ch := p.avail[lease.network]
	p.mu.Unlock()

	ch <- lease.state
}
