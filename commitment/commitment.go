// Package commitment implements the settlement commitment codec: the
// keccak256 digest that binds every settlement parameter (router, token,
// payer, amount, validity window, salt, payee, fee, hook and hook data) into
// the value carried as the EIP-3009 authorization nonce. Any post-signature
// mutation of a bound field changes the digest and invalidates the signature
// that was computed over the original nonce.
package commitment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ProtocolTag namespaces the commitment so it can never collide with a
// plain, unrelated EIP-3009 nonce on the same chain. Part of the wire
// contract: changing it is a protocol break.
const ProtocolTag = "EIP3009-SETTLEMENT-V1"

// Params are the fields bound into a commitment, in encoding order. Field
// order and the fact that HookData is pre-hashed before inclusion are part
// of the wire contract.
type Params struct {
	ChainID        *big.Int
	Router         common.Address
	Token          common.Address
	From           common.Address
	Value          *big.Int
	ValidAfter     *big.Int
	ValidBefore    *big.Int
	Salt           [32]byte
	PayTo          common.Address
	FacilitatorFee *big.Int
	Hook           common.Address
	HookData       []byte
}

// Validate checks that every field required to compute a commitment is
// present and well-formed. Malformed fields fail with INVALID_PARAM per the
// codec's contract; callers surface this as a client error, never a panic.
func (p Params) Validate() error {
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return fmt.Errorf("INVALID_PARAM: chainId must be positive")
	}
	if p.Value == nil || p.Value.Sign() < 0 {
		return fmt.Errorf("INVALID_PARAM: value must be non-negative")
	}
	if p.ValidAfter == nil || p.ValidBefore == nil {
		return fmt.Errorf("INVALID_PARAM: validAfter/validBefore are required")
	}
	if p.FacilitatorFee == nil || p.FacilitatorFee.Sign() < 0 {
		return fmt.Errorf("INVALID_PARAM: facilitatorFee must be non-negative")
	}
	if (p.Router == common.Address{}) || (p.Token == common.Address{}) || (p.From == common.Address{}) || (p.PayTo == common.Address{}) {
		return fmt.Errorf("INVALID_PARAM: router, token, from and payTo must be non-zero addresses")
	}
	return nil
}

// Compute returns the 32-byte commitment digest for params, matching
// keccak256(encodePacked(PROTOCOL_TAG, chainId, router, token, from, value,
// validAfter, validBefore, salt, payTo, facilitatorFee, hook, keccak256(hookData))).
func Compute(p Params) ([32]byte, error) {
	var zero [32]byte
	if err := p.Validate(); err != nil {
		return zero, err
	}

	hookDataHash := crypto.Keccak256(p.HookData)

	packed := make([]byte, 0, 512)
	packed = append(packed, []byte(ProtocolTag)...)
	packed = append(packed, leftPad32(p.ChainID.Bytes())...)
	packed = append(packed, p.Router.Bytes()...)
	packed = append(packed, p.Token.Bytes()...)
	packed = append(packed, p.From.Bytes()...)
	packed = append(packed, leftPad32(p.Value.Bytes())...)
	packed = append(packed, leftPad32(p.ValidAfter.Bytes())...)
	packed = append(packed, leftPad32(p.ValidBefore.Bytes())...)
	packed = append(packed, p.Salt[:]...)
	packed = append(packed, p.PayTo.Bytes()...)
	packed = append(packed, leftPad32(p.FacilitatorFee.Bytes())...)
	packed = append(packed, p.Hook.Bytes()...)
	packed = append(packed, hookDataHash...)

	digest := crypto.Keccak256(packed)
	var out [32]byte
	copy(out[:], digest)
	return out, nil
}

// Verify reports whether nonce equals the commitment recomputed from params.
// Comparison is byte-exact; addresses inside Params must already have been
// normalized (e.g. via common.HexToAddress) so casing never causes a
// false mismatch.
func Verify(nonce [32]byte, p Params) (bool, error) {
	computed, err := Compute(p)
	if err != nil {
		return false, err
	}
	return computed == nonce, nil
}

// GenerateSalt returns 32 cryptographically random bytes, suitable as the
// Params.Salt for a fresh settlement request.
func GenerateSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// ContextKey returns keccak256(from || token || nonce), the router's
// idempotency identifier for a settlement attempt.
func ContextKey(from, token common.Address, nonce [32]byte) [32]byte {
	packed := make([]byte, 0, 20+20+32)
	packed = append(packed, from.Bytes()...)
	packed = append(packed, token.Bytes()...)
	packed = append(packed, nonce[:]...)
	digest := crypto.Keccak256(packed)
	var out [32]byte
	copy(out[:], digest)
	return out
}

// leftPad32 left-pads b with zero bytes to 32 bytes, the packed encoding of
// a solidity uint256.
func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// ParseAddress parses a hex address, case-insensitively, failing with
// INVALID_PARAM rather than go-ethereum's silent zero-value fallback.
func ParseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("INVALID_PARAM: %s is not a valid address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// EqualAddress compares two address strings case-insensitively, the
// comparison rule the registry and verifier use throughout.
func EqualAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
