package facilitator

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Network is a facilitator-local network identifier, e.g. "base-sepolia".
// Unlike the CAIP-2 "namespace:reference" form this SDK's ancestor used,
// a single EVM scheme has no need for cross-family wildcard matching, so
// Network is an opaque name looked up directly in the network registry.
type Network string

// Bytes32 is a 32-byte value carried on the wire as a 0x-prefixed hex
// string, matching how every other EVM value (addresses, tx hashes) is
// represented in this protocol rather than encoding/json's default
// array-of-numbers or base64 rendering of a byte array.
type Bytes32 [32]byte

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b[:])), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid bytes32 %q: %w", text, err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("invalid bytes32 %q: expected 32 bytes, got %d", text, len(decoded))
	}
	copy(b[:], decoded)
	return nil
}

// HexBytes is a variable-length byte slice carried on the wire as a
// 0x-prefixed hex string, for the same reason Bytes32 exists: a signature
// or hook calldata blob should round-trip as hex, not encoding/json's
// default base64 rendering of []byte.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte("0x" + hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes %q: %w", text, err)
	}
	*b = decoded
	return nil
}

// Authorization is the EIP-3009 transferWithAuthorization primitive.
// Invariant: ValidAfter <= now <= ValidBefore; Nonce is exactly 32 bytes and,
// under this protocol, equals the settlement commitment rather than a random value.
type Authorization struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Value       *big.Int `json:"value"`
	ValidAfter  *big.Int `json:"validAfter"`
	ValidBefore *big.Int `json:"validBefore"`
	Nonce       Bytes32  `json:"nonce"`
}

// SettlementExtra carries the settlement-router parameters that, together with
// the Authorization, are bound into the commitment. PayTo here is the final
// recipient; PaymentRequirements.PayTo is the router address funds flow through.
type SettlementExtra struct {
	SettlementRouter string   `json:"settlementRouter"`
	Salt             Bytes32  `json:"salt"`
	PayTo            string   `json:"payTo"`
	FacilitatorFee   *big.Int `json:"facilitatorFee"`
	Hook             string   `json:"hook"`
	HookData         HexBytes `json:"hookData"`
}

// PaymentPayloadInner is the scheme-specific payload body. On the wire its
// fields are flattened into one JSON object alongside authorization and
// signature rather than nested under a sub-key, so it carries its own
// MarshalJSON/UnmarshalJSON rather than relying on struct tags.
type PaymentPayloadInner struct {
	Authorization Authorization
	Signature     HexBytes
	Extra         SettlementExtra
}

// paymentPayloadInnerWire is the flattened wire shape of PaymentPayloadInner:
// {authorization, signature, settlementRouter?, salt?, payTo?,
// facilitatorFee?, hook?, hookData?}.
type paymentPayloadInnerWire struct {
	Authorization    Authorization `json:"authorization"`
	Signature        HexBytes      `json:"signature"`
	SettlementRouter string        `json:"settlementRouter,omitempty"`
	Salt             *Bytes32      `json:"salt,omitempty"`
	PayTo            string        `json:"payTo,omitempty"`
	FacilitatorFee   *big.Int      `json:"facilitatorFee,omitempty"`
	Hook             string        `json:"hook,omitempty"`
	HookData         HexBytes      `json:"hookData,omitempty"`
}

func (p PaymentPayloadInner) MarshalJSON() ([]byte, error) {
	salt := p.Extra.Salt
	return json.Marshal(paymentPayloadInnerWire{
		Authorization:    p.Authorization,
		Signature:        p.Signature,
		SettlementRouter: p.Extra.SettlementRouter,
		Salt:             &salt,
		PayTo:            p.Extra.PayTo,
		FacilitatorFee:   p.Extra.FacilitatorFee,
		Hook:             p.Extra.Hook,
		HookData:         p.Extra.HookData,
	})
}

func (p *PaymentPayloadInner) UnmarshalJSON(data []byte) error {
	var wire paymentPayloadInnerWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.Authorization = wire.Authorization
	p.Signature = wire.Signature
	p.Extra = SettlementExtra{
		SettlementRouter: wire.SettlementRouter,
		PayTo:            wire.PayTo,
		FacilitatorFee:   wire.FacilitatorFee,
		Hook:             wire.Hook,
		HookData:         wire.HookData,
	}
	if wire.Salt != nil {
		p.Extra.Salt = *wire.Salt
	}
	return nil
}

// PaymentPayload is the wire object a payer (or a merchant relaying on a
// payer's behalf) submits to /verify and /settle.
type PaymentPayload struct {
	Scheme  string              `json:"scheme"`
	Network Network             `json:"network"`
	Payload PaymentPayloadInner `json:"payload"`
}

// PaymentRequirements is the merchant-advertised payment contract.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	MaxAmountRequired *big.Int               `json:"maxAmountRequired"`
	Resource          string                 `json:"resource,omitempty"`
	PayTo             string                 `json:"payTo"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// VerifyResponse is the result of running the verifier. If verification fails
// for protocol-level reasons (malformed request) an error is returned instead
// and this is nil; a rejected-but-well-formed payment sets IsValid=false.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// GasMetrics is produced after a settlement's receipt is available.
type GasMetrics struct {
	GasUsed             uint64  `json:"gasUsed"`
	EffectiveGasPrice   string  `json:"effectiveGasPrice"`
	ActualGasCostNative string  `json:"actualGasCostNative"`
	ActualGasCostUSD    float64 `json:"actualGasCostUSD"`
	FacilitatorFee      string  `json:"facilitatorFee"`
	FacilitatorFeeUSD   float64 `json:"facilitatorFeeUSD"`
	ProfitUSD           float64 `json:"profitUSD"`
	ProfitMarginPercent float64 `json:"profitMarginPercent"`
	Profitable          bool    `json:"profitable"`
}

// SettleResponse is the result of running the settlement engine.
type SettleResponse struct {
	Success     bool        `json:"success"`
	ErrorReason string      `json:"errorReason,omitempty"`
	Payer       string      `json:"payer,omitempty"`
	Transaction string      `json:"transaction"`
	Network     Network     `json:"network"`
	GasMetrics  *GasMetrics `json:"gasMetrics,omitempty"`
}

// SupportedKind describes one (scheme, network) combination the facilitator accepts.
type SupportedKind struct {
	Scheme  string                 `json:"scheme"`
	Network Network                `json:"network"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse lists every accepted (scheme, network) combination.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Error reason strings surfaced verbatim to clients via VerifyResponse.InvalidReason
// and SettleResponse.ErrorReason. Kept as untyped constants because they are a wire
// contract, not an internal enum.
const (
	ReasonInvalidSignature           = "invalid_signature"
	ReasonAuthorizationExpired       = "authorization_expired"
	ReasonAuthorizationNotYetValid   = "authorization_not_yet_valid"
	ReasonInvalidRecipient           = "invalid_recipient"
	ReasonInsufficientFunds          = "insufficient_funds"
	ReasonInvalidScheme              = "invalid_scheme"
	ReasonInvalidCommitment          = "invalid_commitment"
	ReasonAlreadySettled             = "already_settled"
	ReasonSettlementRouterNotConfig  = "settlement_router_not_configured"
	ReasonInvalidTransactionState    = "invalid_transaction_state"
	ReasonUnexpectedSettleError      = "unexpected_settle_error"
	ReasonUnsupportedNetwork         = "unsupported_network"
	ReasonNoSignerAvailable          = "no_signer_available"
	ReasonUnsupportedToken           = "unsupported_token"
)

// ParseNetwork is a typed constructor, kept for symmetry with the wire layer
// where Network always arrives as a plain JSON string.
func ParseNetwork(s string) Network {
	return Network(s)
}

func (n Network) String() string {
	return string(n)
}

// validateAddress is a light sanity check shared by the validators in utils.go;
// full hex-address validation lives in the commitment package (ParseAddress),
// which needs a parsed address for comparison against on-chain state.
func validateAddress(field, addr string) error {
	if len(addr) != 42 || addr[0:2] != "0x" {
		return fmt.Errorf("%s: expected 0x-prefixed 20-byte address, got %q", field, addr)
	}
	return nil
}
