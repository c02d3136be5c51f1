package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// chainIDs maps the network names this facilitator ships with to their
// EVM chain ids. BuildConfig rejects any network name missing from this
// table.
var chainIDs = map[string]int64{
	"base-sepolia":         84532,
	"base":                 8453,
	"optimism-sepolia":     11155420,
	"filecoin-calibration": 314159,
	"filecoin":             314,
}

// NetworkSettingsSource is the subset of config.NetworkSettings the
// registry needs to build a NetworkConfig. Declared here, at the point of
// use, so the registry package does not import the config package.
type NetworkSettingsSource struct {
	Network          string
	RPCURL           string
	SettlementRouter string
	AllowedHooks     []string
	AssetAddress     string
	AssetDecimals    uint8
	AssetEIP712Name  string
	AssetEIP712Ver   string
	NativePriceFeed  string // optional; "" means no live native feed
	AssetPriceFeed   string // optional; "" means no live asset feed
}

// BuildConfig converts a NetworkSettingsSource into a NetworkConfig, looking
// up the chain id from the built-in table and deriving FEVM/testnet facts
// from the network name.
func BuildConfig(src NetworkSettingsSource) (NetworkConfig, error) {
	chainID, ok := chainIDs[src.Network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("no known chain id for network %q; add it to registry.chainIDs", src.Network)
	}

	if !common.IsHexAddress(src.SettlementRouter) {
		return NetworkConfig{}, fmt.Errorf("network %q: invalid settlement router address %q", src.Network, src.SettlementRouter)
	}
	if !common.IsHexAddress(src.AssetAddress) {
		return NetworkConfig{}, fmt.Errorf("network %q: invalid asset address %q", src.Network, src.AssetAddress)
	}

	var allowed []common.Address
	for _, h := range src.AllowedHooks {
		if !common.IsHexAddress(h) {
			return NetworkConfig{}, fmt.Errorf("network %q: invalid allowed hook address %q", src.Network, h)
		}
		allowed = append(allowed, common.HexToAddress(h))
	}

	asset := Asset{
		Address:  common.HexToAddress(src.AssetAddress),
		Decimals: src.AssetDecimals,
		EIP712:   EIP712Domain{Name: src.AssetEIP712Name, Version: src.AssetEIP712Ver},
	}

	gasModel := GasModelEIP1559
	if strings.Contains(strings.ToLower(src.Network), "filecoin") {
		gasModel = GasModelFEVM
	}

	var nativeFeed, assetFeed common.Address
	if src.NativePriceFeed != "" {
		if !common.IsHexAddress(src.NativePriceFeed) {
			return NetworkConfig{}, fmt.Errorf("network %q: invalid native price feed address %q", src.Network, src.NativePriceFeed)
		}
		nativeFeed = common.HexToAddress(src.NativePriceFeed)
	}
	if src.AssetPriceFeed != "" {
		if !common.IsHexAddress(src.AssetPriceFeed) {
			return NetworkConfig{}, fmt.Errorf("network %q: invalid asset price feed address %q", src.Network, src.AssetPriceFeed)
		}
		assetFeed = common.HexToAddress(src.AssetPriceFeed)
	}

	return NetworkConfig{
		Name:             src.Network,
		ChainID:          chainID,
		DefaultAsset:     asset,
		SupportedAssets:  []Asset{asset},
		SettlementRouter: common.HexToAddress(src.SettlementRouter),
		Metadata:         Metadata{NativeToken: nativeTokenFor(src.Network), GasModel: gasModel},
		Hooks:            Hooks{Allowed: allowed},
		RPCURL:           src.RPCURL,
		IsTestnet:        isTestnet(src.Network),
		NativePriceFeed:  nativeFeed,
		AssetPriceFeed:   assetFeed,
	}, nil
}

func nativeTokenFor(network string) string {
	switch {
	case strings.Contains(network, "filecoin"):
		return "FIL"
	case strings.Contains(network, "optimism"):
		return "ETH"
	default:
		return "ETH"
	}
}

// isTestnet reports whether network is a testnet, used by the price oracle
// to decide whether to short-circuit to static prices. Filecoin's testnet
// is deliberately excluded by the caller: the fee engine's FEVM carve-out
// depends on live gas data even in calibration.
func isTestnet(network string) bool {
	return strings.Contains(network, "sepolia") || strings.Contains(network, "calibration") || strings.Contains(network, "goerli")
}
