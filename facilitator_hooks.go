package facilitator

import "context"

// ============================================================================
// Hook Context Types
// ============================================================================

// VerifyContext carries the information passed to verify hooks.
type VerifyContext struct {
	Ctx          context.Context
	Payload      PaymentPayload
	Requirements PaymentRequirements
}

// VerifyResultContext carries a completed verify operation's result and context.
type VerifyResultContext struct {
	VerifyContext
	Result *VerifyResponse
}

// VerifyFailureContext carries a failed verify operation's error and context.
type VerifyFailureContext struct {
	VerifyContext
	Error error
}

// SettleContext carries the information passed to settle hooks.
type SettleContext struct {
	Ctx          context.Context
	Payload      PaymentPayload
	Requirements PaymentRequirements
}

// SettleResultContext carries a completed settle operation's result and context.
type SettleResultContext struct {
	SettleContext
	Result *SettleResponse
}

// SettleFailureContext carries a failed settle operation's error and context.
type SettleFailureContext struct {
	SettleContext
	Error error
}

// ============================================================================
// Hook Result Types
// ============================================================================

// BeforeHookResult is returned by a "before" hook. If Abort is true, the
// operation is aborted and Reason is surfaced as the invalid/error reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// VerifyFailureHookResult is returned by an onVerifyFailure hook. If Recovered
// is true, Result is returned to the caller instead of the error.
type VerifyFailureHookResult struct {
	Recovered bool
	Result    *VerifyResponse
}

// SettleFailureHookResult is returned by an onSettleFailure hook.
type SettleFailureHookResult struct {
	Recovered bool
	Result    *SettleResponse
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforeVerifyHook runs before verification. Abort=true skips verification
// and returns an invalid VerifyResponse carrying the given reason.
type BeforeVerifyHook func(VerifyContext) (*BeforeHookResult, error)

// AfterVerifyHook runs after a successful verification. Any returned error is
// ignored and does not affect the verification result.
type AfterVerifyHook func(VerifyResultContext) error

// OnVerifyFailureHook runs when verification fails. Recovered=true substitutes
// the provided VerifyResponse for the error.
type OnVerifyFailureHook func(VerifyFailureContext) (*VerifyFailureHookResult, error)

// BeforeSettleHook runs before settlement. Abort=true refuses settlement with
// the given reason before any signer is leased or RPC call made.
type BeforeSettleHook func(SettleContext) (*BeforeHookResult, error)

// AfterSettleHook runs after a successful settlement.
type AfterSettleHook func(SettleResultContext) error

// OnSettleFailureHook runs when settlement fails.
type OnSettleFailureHook func(SettleFailureContext) (*SettleFailureHookResult, error)
