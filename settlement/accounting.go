package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	facilitator "github.com/awesome-doge/settlement-core/go"
)

// weiPerEther is the scale factor between wei and the native currency unit
// USD prices are quoted against.
var weiPerEther = new(big.Float).SetFloat64(1e18)

// accountForSettlement derives the post-confirmation economics of a
// settlement: what it cost the facilitator in gas, what it earned in fee,
// and whether the two nets positive. facilitatorFee is in the payment
// token's base units; tokenDecimals converts it to a token-denominated
// float before pricing it in USD.
func accountForSettlement(
	receipt *types.Receipt,
	gasPriceWei *big.Int,
	nativePriceUSD float64,
	facilitatorFee *big.Int,
	tokenPriceUSD float64,
	tokenDecimals uint8,
) facilitator.GasMetrics {
	effectiveGasPrice := gasPriceWei
	if receipt.EffectiveGasPrice != nil {
		effectiveGasPrice = receipt.EffectiveGasPrice
	}

	gasCostWei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), effectiveGasPrice)
	gasCostNative := new(big.Float).Quo(new(big.Float).SetInt(gasCostWei), weiPerEther)
	gasCostNativeFloat, _ := gasCostNative.Float64()
	gasCostUSD := gasCostNativeFloat * nativePriceUSD

	feeBaseUnits := big.NewInt(0)
	if facilitatorFee != nil {
		feeBaseUnits = facilitatorFee
	}
	feeTokenUnits := baseUnitsToFloat(feeBaseUnits, tokenDecimals)
	feeUSD := feeTokenUnits * tokenPriceUSD

	profitUSD := feeUSD - gasCostUSD
	marginPercent := 0.0
	if feeUSD > 0 {
		marginPercent = (profitUSD / feeUSD) * 100
	}

	return facilitator.GasMetrics{
		GasUsed:             receipt.GasUsed,
		EffectiveGasPrice:   effectiveGasPrice.String(),
		ActualGasCostNative: gasCostNative.Text('f', 18),
		ActualGasCostUSD:    gasCostUSD,
		FacilitatorFee:      feeBaseUnits.String(),
		FacilitatorFeeUSD:   feeUSD,
		ProfitUSD:           profitUSD,
		ProfitMarginPercent: marginPercent,
		Profitable:          profitUSD > 0,
	}
}

func baseUnitsToFloat(v *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetFloat64(pow10(decimals))
	f := new(big.Float).Quo(new(big.Float).SetInt(v), scale)
	out, _ := f.Float64()
	return out
}

func pow10(n uint8) float64 {
	out := 1.0
	for i := uint8(0); i < n; i++ {
		out *= 10
	}
	return out
}
