// Package registry is the read-only network registry (component C2): a
// frozen, init-time-only lookup from network name to the chain parameters
// the rest of the facilitator needs (chain id, default settlement asset,
// settlement router, EIP-712 domain, whitelisted hooks). The Verifier and
// Settlement Engine treat it as the sole authority on which networks exist.
package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// EIP712Domain is the subset of a token's EIP-712 domain the facilitator
// needs to re-derive the typed-data digest during verification.
type EIP712Domain struct {
	Name    string
	Version string
}

// Asset describes a single ERC-3009-capable token on a network.
type Asset struct {
	Address  common.Address
	Decimals uint8
	EIP712   EIP712Domain
}

// GasModel names the fee mechanism a chain uses; FEVM chains take the
// 150M-gas hard floor/ceiling carve-out in the fee engine regardless of
// this value, keyed instead off the network name containing "filecoin".
type GasModel string

const (
	GasModelEIP1559 GasModel = "eip1559"
	GasModelLegacy  GasModel = "legacy"
	GasModelFEVM    GasModel = "fevm"
)

// Metadata carries chain facts that do not affect settlement correctness
// but are useful for pricing and display.
type Metadata struct {
	NativeToken string
	GasModel    GasModel
}

// Hooks whitelists the settlement hook addresses permitted on this network.
// An empty Allowed list means "no whitelist configured" — see
// NetworkConfig.HookWhitelisted. Transfer is the hook address the
// settlement engine classifies as a transfer hook for gas estimation.
type Hooks struct {
	Transfer common.Address
	Allowed  []common.Address
}

// NetworkConfig is the full per-chain configuration. Exactly one
// NetworkConfig exists per supported network name; address comparisons
// throughout the facilitator are case-insensitive.
type NetworkConfig struct {
	Name             string
	ChainID          int64
	DefaultAsset     Asset
	SupportedAssets  []Asset
	SettlementRouter common.Address
	Metadata         Metadata
	Hooks            Hooks
	RPCURL           string
	IsTestnet        bool

	// NativePriceFeed/AssetPriceFeed are Chainlink-compatible aggregator
	// addresses the price oracle reads USD quotes from. The zero address
	// means "no feed configured"; the oracle falls back to its static price
	// for that network/asset rather than failing.
	NativePriceFeed common.Address
	AssetPriceFeed  common.Address
}

// IsFEVM reports whether this network is part of the Filecoin EVM family,
// which the fee engine exempts from its normal gas-limit bounds because
// USDC there executes through a delegatecall proxy several times more
// expensive than a native ERC-20 transfer.
func (c NetworkConfig) IsFEVM() bool {
	return strings.Contains(strings.ToLower(c.Name), "filecoin")
}

// HookWhitelisted reports whether hook is permitted to run on this network.
// An empty Allowed list means no whitelist is configured and any hook is
// accepted, matching the engine's optional-whitelist design.
func (c NetworkConfig) HookWhitelisted(hook common.Address) bool {
	if len(c.Hooks.Allowed) == 0 {
		return true
	}
	for _, h := range c.Hooks.Allowed {
		if h == hook {
			return true
		}
	}
	return false
}

// AssetSupported reports whether asset equals the network's default asset
// or one of its SupportedAssets. BuildConfig puts only the default asset in
// SupportedAssets, so a network built from configuration accepts one token.
func (c NetworkConfig) AssetSupported(asset common.Address) bool {
	if c.DefaultAsset.Address == asset {
		return true
	}
	for _, a := range c.SupportedAssets {
		if a.Address == asset {
			return true
		}
	}
	return false
}

// Registry is an immutable, post-init lookup table. Zero value is usable
// only via New; there is no exported mutator, matching the "writes are
// init-time only" invariant.
type Registry struct {
	byName map[string]NetworkConfig
}

// New builds a Registry from a fixed set of configs. Duplicate names are a
// configuration error caught at startup, not a runtime failure.
func New(configs ...NetworkConfig) (*Registry, error) {
	byName := make(map[string]NetworkConfig, len(configs))
	for _, c := range configs {
		if c.Name == "" {
			return nil, fmt.Errorf("network config missing name")
		}
		if _, exists := byName[c.Name]; exists {
			return nil, fmt.Errorf("duplicate network config for %q", c.Name)
		}
		byName[c.Name] = c
	}
	return &Registry{byName: byName}, nil
}

// Get returns the NetworkConfig for name, or an error if the network is
// unsupported. Lookups are case-sensitive on the network name itself
// (network names are canonical identifiers, not addresses).
func (r *Registry) Get(name string) (NetworkConfig, error) {
	cfg, ok := r.byName[name]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("UNSUPPORTED_NETWORK: %q", name)
	}
	return cfg, nil
}

// SupportedNetworks returns the names of every configured network. This is
// the authority the Verifier and Settlement Engine consult before doing
// any other work.
func (r *Registry) SupportedNetworks() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
