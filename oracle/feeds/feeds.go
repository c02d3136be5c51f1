// Package feeds implements the production Fetcher backends the gas and
// price oracles run against in cmd/facilitatord: eth_gasPrice for gas, and a
// Chainlink-compatible latestAnswer() read for USD quotes. Neither oracle
// depends on this package directly, only on the gas.Fetcher/price.Fetcher
// interfaces it implements, so tests substitute stubs instead.
package feeds

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/awesome-doge/settlement-core/go/router"
)

// chainlinkFeedDecimals is the decimal precision every USD-denominated
// Chainlink aggregator reports its answer in.
const chainlinkFeedDecimals = 8

// RPCGasFetcher asks each network's own RPC node for its current suggested
// gas price, one read-only client per network.
type RPCGasFetcher struct {
	clients map[string]router.Client
}

// NewRPCGasFetcher builds a fetcher over the given per-network clients.
func NewRPCGasFetcher(clients map[string]router.Client) *RPCGasFetcher {
	return &RPCGasFetcher{clients: clients}
}

func (f *RPCGasFetcher) FetchGasPriceWei(ctx context.Context, network string) (*big.Int, error) {
	client, ok := f.clients[network]
	if !ok {
		return nil, fmt.Errorf("feeds: no RPC client configured for network %q", network)
	}
	return client.SuggestGasPrice(ctx)
}

// ChainlinkPriceFetcher reads a Chainlink-compatible aggregator's
// latestAnswer() per network/asset. A network missing from nativeFeeds or
// assetFeeds (or mapped to the zero address) reports an error, which the
// price oracle turns into its static fallback rather than propagating.
type ChainlinkPriceFetcher struct {
	clients     map[string]router.Client
	nativeFeeds map[string]common.Address
	assetFeeds  map[string]common.Address
}

// NewChainlinkPriceFetcher builds a fetcher over the given per-network
// clients and feed addresses.
func NewChainlinkPriceFetcher(clients map[string]router.Client, nativeFeeds, assetFeeds map[string]common.Address) *ChainlinkPriceFetcher {
	return &ChainlinkPriceFetcher{clients: clients, nativeFeeds: nativeFeeds, assetFeeds: assetFeeds}
}

func (f *ChainlinkPriceFetcher) FetchNativePriceUSD(ctx context.Context, network string) (float64, error) {
	return f.fetch(ctx, network, f.nativeFeeds)
}

func (f *ChainlinkPriceFetcher) FetchAssetPriceUSD(ctx context.Context, network string) (float64, error) {
	return f.fetch(ctx, network, f.assetFeeds)
}

func (f *ChainlinkPriceFetcher) fetch(ctx context.Context, network string, feeds map[string]common.Address) (float64, error) {
	client, ok := f.clients[network]
	if !ok {
		return 0, fmt.Errorf("feeds: no RPC client configured for network %q", network)
	}
	feed, ok := feeds[network]
	if !ok || feed == (common.Address{}) {
		return 0, fmt.Errorf("feeds: no price feed configured for network %q", network)
	}

	result, err := client.ReadContract(ctx, feed, router.ChainlinkFeedABI, router.FunctionLatestAnswer)
	if err != nil {
		return 0, fmt.Errorf("latestAnswer: %w", err)
	}
	answer, ok := result.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("latestAnswer: unexpected return type %T", result)
	}

	scale := new(big.Float).SetFloat64(pow10(chainlinkFeedDecimals))
	usd := new(big.Float).Quo(new(big.Float).SetInt(answer), scale)
	out, _ := usd.Float64()
	return out, nil
}

func pow10(n uint8) float64 {
	out := 1.0
	for i := uint8(0); i < n; i++ {
		out *= 10
	}
	return out
}
