package facilitator

import (
	"fmt"
	"math/big"
)

// ValidatePaymentPayload performs structural validation on a payment payload,
// independent of any network or signature check (those belong to the verifier).
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.Scheme != SchemeExact {
		return fmt.Errorf("unsupported scheme: %s", p.Scheme)
	}
	if p.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	auth := p.Payload.Authorization
	if err := validateAddress("authorization.from", auth.From); err != nil {
		return err
	}
	if err := validateAddress("authorization.to", auth.To); err != nil {
		return err
	}
	if auth.Value == nil || auth.Value.Sign() < 0 {
		return fmt.Errorf("authorization.value must be a non-negative integer")
	}
	if auth.ValidAfter == nil || auth.ValidBefore == nil {
		return fmt.Errorf("authorization.validAfter and validBefore are required")
	}
	if auth.ValidAfter.Cmp(auth.ValidBefore) >= 0 {
		return fmt.Errorf("authorization.validAfter must be before validBefore")
	}
	if len(p.Payload.Signature) == 0 {
		return fmt.Errorf("payload signature is required")
	}
	return nil
}

// ValidatePaymentRequirements performs structural validation on requirements.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme != SchemeExact {
		return fmt.Errorf("unsupported scheme: %s", r.Scheme)
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if err := validateAddress("asset", r.Asset); err != nil {
		return err
	}
	if err := validateAddress("payTo", r.PayTo); err != nil {
		return err
	}
	if r.MaxAmountRequired == nil || r.MaxAmountRequired.Sign() <= 0 {
		return fmt.Errorf("maxAmountRequired must be a positive integer")
	}
	return nil
}

// bigFromDecimalString parses a base-10 integer string into a *big.Int, the
// wire representation 256-bit values use across the payload and requirements.
func bigFromDecimalString(field, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid decimal integer %q", field, s)
	}
	return n, nil
}
