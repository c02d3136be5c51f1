// Package router provides the hand-built ABI bindings for the settlement
// router contract and the ERC-20 methods the facilitator reads directly.
// Bindings are written by hand rather than generated with abigen, matching
// the minimal-dependency ABI-encoding style the example facilitators use
// for a contract surface this small.
package router

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// settleAndExecuteABI is the settlement router's entrypoint: it transfers
// value from `from` to `payTo` via EIP-3009, deducts facilitatorFee, and
// invokes hook with hookData, atomically.
const settleAndExecuteABI = `[{
	"name": "settleAndExecute",
	"type": "function",
	"inputs": [
		{"name": "token", "type": "address"},
		{"name": "from", "type": "address"},
		{"name": "value", "type": "uint256"},
		{"name": "validAfter", "type": "uint256"},
		{"name": "validBefore", "type": "uint256"},
		{"name": "nonce", "type": "bytes32"},
		{"name": "signature", "type": "bytes"},
		{"name": "salt", "type": "bytes32"},
		{"name": "payTo", "type": "address"},
		{"name": "facilitatorFee", "type": "uint256"},
		{"name": "hook", "type": "address"},
		{"name": "hookData", "type": "bytes"}
	],
	"outputs": []
}]`

const isSettledABI = `[{
	"name": "isSettled",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "contextKey", "type": "bytes32"}],
	"outputs": [{"name": "", "type": "bool"}]
}]`

const calculateContextKeyABI = `[{
	"name": "calculateContextKey",
	"type": "function",
	"stateMutability": "pure",
	"inputs": [
		{"name": "from", "type": "address"},
		{"name": "token", "type": "address"},
		{"name": "nonce", "type": "bytes32"}
	],
	"outputs": [{"name": "", "type": "bytes32"}]
}]`

const getPendingFeesABI = `[{
	"name": "getPendingFees",
	"type": "function",
	"stateMutability": "view",
	"inputs": [
		{"name": "owner", "type": "address"},
		{"name": "token", "type": "address"}
	],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

const claimFeesABI = `[{
	"name": "claimFees",
	"type": "function",
	"inputs": [{"name": "tokens", "type": "address[]"}],
	"outputs": []
}]`

const balanceOfABI = `[{
	"name": "balanceOf",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "account", "type": "address"}],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

// latestAnswerABI is Chainlink's legacy single-value AggregatorInterface
// method, used instead of the newer latestRoundData because ReadContract
// decodes a single return value and latestAnswer already reports exactly
// the one number the price oracle needs.
const latestAnswerABI = `[{
	"name": "latestAnswer",
	"type": "function",
	"stateMutability": "view",
	"inputs": [],
	"outputs": [{"name": "", "type": "int256"}]
}]`

// Function names, matching the ABI fragments above.
const (
	FunctionSettleAndExecute    = "settleAndExecute"
	FunctionIsSettled           = "isSettled"
	FunctionCalculateContextKey = "calculateContextKey"
	FunctionGetPendingFees      = "getPendingFees"
	FunctionClaimFees           = "claimFees"
	FunctionBalanceOf           = "balanceOf"
	FunctionLatestAnswer        = "latestAnswer"
)

func mustParseABI(fragment string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(fragment))
	if err != nil {
		panic("router: invalid embedded ABI fragment: " + err.Error())
	}
	return parsed
}

var (
	// SettlementRouterABI exposes every method the facilitator calls on the
	// settlement router.
	SettlementRouterABI = mustMerge(settleAndExecuteABI, isSettledABI, calculateContextKeyABI, getPendingFeesABI, claimFeesABI)

	// ERC20ABI exposes the single ERC-20 method the balance checker needs.
	ERC20ABI = mustParseABI(balanceOfABI)

	// ChainlinkFeedABI exposes the price oracle's on-chain read.
	ChainlinkFeedABI = mustParseABI(latestAnswerABI)
)

// mustMerge combines several single-method ABI JSON fragments into one
// abi.ABI, since go-ethereum's abi.JSON only parses a single JSON document.
func mustMerge(fragments ...string) abi.ABI {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range fragments {
		trimmed := strings.TrimSpace(f)
		trimmed = strings.TrimPrefix(trimmed, "[")
		trimmed = strings.TrimSuffix(trimmed, "]")
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(trimmed)
	}
	sb.WriteString("]")
	return mustParseABI(sb.String())
}
