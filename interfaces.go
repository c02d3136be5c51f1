package facilitator

import "context"

// Verifier runs the canonical EIP-3009 authorization checks against a single
// payload/requirements pair. Implemented by the verify package; declared here,
// at the point of use, so the root facilitator can be tested against a fake.
type Verifier interface {
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
}

// Settler drives a payload/requirements pair through the settlement state
// machine. Implemented by the settlement package.
type Settler interface {
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

// SupportedProvider reports which (scheme, network) combinations the
// facilitator will accept, for the GET /supported endpoint.
type SupportedProvider interface {
	GetSupported() SupportedResponse
}
