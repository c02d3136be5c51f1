// Package fees implements the fee and gas-limit engine (component C5): the
// minimum facilitator fee the service will accept for a settlement (in the
// payment token's base units and in USD), and the gas ceiling, in gas units,
// it will submit a transaction with, bounded by a minimum, a maximum and
// what the facilitator fee can pay for.
package fees

import (
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/awesome-doge/settlement-core/go/registry"
)

// HookKind classifies a settlement hook for gas-limit estimation purposes.
// Unknown hooks are treated as HookKindGeneric, the conservative default.
type HookKind string

const (
	HookKindGeneric  HookKind = "generic"
	HookKindTransfer HookKind = "transfer"
	HookKindCustom   HookKind = "custom"
)

const (
	minGasLimit       uint64  = 100_000
	maxGasLimit       uint64  = 2_000_000
	safetyMultiplier  float64 = 1.2
	affordabilityMargin float64 = 0.2 // facilitator keeps 20% of the fee as margin

	testnetFeeFloorUSD float64 = 0.001
	mainnetFeeFloorUSD float64 = 0.01

	// fevmGasLimit is the hard floor and ceiling for every Filecoin EVM
	// network: USDC there runs through a delegatecall proxy that makes every
	// authorization check and transfer several times more expensive than a
	// native ERC-20, so the normal economic bounds do not apply.
	fevmGasLimit uint64 = 150_000_000
)

// hookGasOverhead is the extra gas budget added on top of the base
// settlement cost for a given hook kind, before it is handed to the signer.
var hookGasOverhead = map[HookKind]uint64{
	HookKindGeneric:  50_000,
	HookKindTransfer: 21_000,
	HookKindCustom:   150_000,
}

// Engine computes minimum fees and effective gas limits against a network
// registry; it holds no mutable state of its own.
type Engine struct {
	registry *registry.Registry
}

// New builds a fee engine backed by registry.
func New(reg *registry.Registry) *Engine {
	return &Engine{registry: reg}
}

// MinFeeResult is the result of CalculateMinFacilitatorFee.
type MinFeeResult struct {
	FeeBaseUnits *big.Int
	FeeUSD       float64
}

// CalculateMinFacilitatorFee returns the minimum fee the facilitator will
// accept for a settlement on network, in the payment token's base units and
// in USD. The gas cost (gasLimit * gasPrice * safetyMultiplier, in wei) is
// converted to USD using nativePriceUSD, the chain's native gas currency
// price, and only then divided by tokenPriceUSD to express it in the
// payment token. hook must be whitelisted for the network when a whitelist
// is configured, or this fails with an error the caller should surface as
// hook_not_whitelisted.
func (e *Engine) CalculateMinFacilitatorFee(
	network registry.NetworkConfig,
	hook common.Address,
	hookKind HookKind,
	tokenDecimals uint8,
	gasPriceWei *big.Int,
	nativePriceUSD float64,
	tokenPriceUSD float64,
) (MinFeeResult, error) {
	if !network.HookWhitelisted(hook) {
		return MinFeeResult{}, errHookNotWhitelisted(hook)
	}
	if nativePriceUSD <= 0 {
		return MinFeeResult{}, errNonFinitePrice("nativePriceUSD")
	}
	if tokenPriceUSD <= 0 {
		return MinFeeResult{}, errNonFinitePrice("tokenPriceUSD")
	}

	gasLimit := networkMinGasLimit(network, hookKind)
	costWei := new(big.Float).Mul(
		new(big.Float).SetUint64(gasLimit),
		new(big.Float).SetInt(gasPriceWei),
	)
	costWei.Mul(costWei, big.NewFloat(safetyMultiplier))

	costNative, _ := costWei.Quo(costWei, big.NewFloat(1e18)).Float64()
	costUSD := costNative * nativePriceUSD

	floor := mainnetFeeFloorUSD
	if network.IsTestnet {
		floor = testnetFeeFloorUSD
	}
	if costUSD < floor {
		costUSD = floor
	}

	feeTokenUnits := costUSD / tokenPriceUSD
	feeBaseUnits := toBaseUnits(feeTokenUnits, tokenDecimals)

	return MinFeeResult{FeeBaseUnits: feeBaseUnits, FeeUSD: costUSD}, nil
}

// CalculateEffectiveGasLimit returns the gas ceiling for a settlement
// transaction, satisfying simultaneously a minimum (so the transaction can
// run at all), a maximum (defence against adversarial hooks) and an
// affordability bound derived from the facilitator fee actually being paid.
// A hook-specific overhead is added afterward so the hook has headroom once
// base settlement is paid. FEVM networks bypass all of this with a fixed
// 150M-gas limit.
func (e *Engine) CalculateEffectiveGasLimit(
	network registry.NetworkConfig,
	hookKind HookKind,
	facilitatorFeeUSD float64,
	gasPriceWei *big.Int,
	nativePriceUSD float64,
) uint64 {
	if network.IsFEVM() {
		return fevmGasLimit
	}

	min := networkMinGasLimit(network, hookKind)
	max := maxGasLimit

	if !finite(nativePriceUSD) || nativePriceUSD <= 0 {
		return min + hookGasOverhead[hookKind]
	}

	affordableNative := (facilitatorFeeUSD * (1 - affordabilityMargin)) / nativePriceUSD
	affordableWei := new(big.Float).Mul(big.NewFloat(affordableNative), big.NewFloat(1e18))
	affordableGas, _ := new(big.Float).Quo(affordableWei, new(big.Float).SetInt(gasPriceWei)).Float64()

	limit := min
	if affordableGas < float64(max) {
		limit = uint64(math.Max(float64(min), affordableGas))
	} else {
		limit = max
	}

	return limit + hookGasOverhead[hookKind]
}

func networkMinGasLimit(network registry.NetworkConfig, hookKind HookKind) uint64 {
	if network.IsFEVM() {
		return fevmGasLimit
	}
	return minGasLimit + hookGasOverhead[hookKind]
}

func toBaseUnits(amount float64, decimals uint8) *big.Int {
	scale := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	out, _ := scaled.Int(nil)
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func errHookNotWhitelisted(hook common.Address) error {
	return &FeeError{Reason: "hook_not_whitelisted", Detail: hook.Hex()}
}

func errNonFinitePrice(field string) error {
	return &FeeError{Reason: "invalid_price", Detail: field}
}

// FeeError reports a fee-engine precondition failure.
type FeeError struct {
	Reason string
	Detail string
}

func (e *FeeError) Error() string {
	return e.Reason + ": " + strings.TrimSpace(e.Detail)
}
