package verify

import (
	"bytes"
	"encoding/hex"
)

// erc6492Magic is the 32-byte suffix ERC-6492 appends to a wrapped
// signature so a verifier can distinguish "this is a counterfactual smart
// account signature" from a plain ECDSA one without any other context.
var erc6492Magic = mustHex("6492649264926492649264926492649264926492649264926492649264926492")

// unwrapSignature strips the ERC-6492 magic suffix if present, returning the
// bytes before it and whether a wrapper was found. Full ERC-6492
// verification would replay the smart account's deployment and call
// isValidSignature on-chain; this SDK does not attempt that simulation, so
// a wrapped signature is reported as found but NOT independently verified
// here — the caller folds this into a tolerated verdict rather than
// rejecting outright, matching how the underlying SDK this evolved from
// special-cased undeployed smart accounts.
func unwrapSignature(sig []byte) (inner []byte, wrapped bool) {
	if len(sig) < len(erc6492Magic) || !bytes.Equal(sig[len(sig)-len(erc6492Magic):], erc6492Magic) {
		return sig, false
	}
	// The remaining bytes are abi.encode(factory, factoryCalldata,
	// signature); this SDK does not decode factory/calldata since it never
	// deploys counterfactual accounts on the payer's behalf.
	return sig[:len(sig)-len(erc6492Magic)], true
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("verify: invalid embedded hex constant: " + err.Error())
	}
	return b
}
