// Package facilitator implements an EIP-3009 settlement facilitator: it
// verifies signed transferWithAuthorization payloads and settles them through
// a settlement router contract that atomically moves funds and invokes a
// merchant-supplied hook.
package facilitator

import (
	"context"
)

// facilitator wires a Verifier and a Settler together with the hook chain.
// Construct with New and configure with the On*/RegisterSupported methods
// before serving traffic; it is not safe to mutate hook lists concurrently
// with in-flight requests.
type facilitator struct {
	verifier Verifier
	settler  Settler
	supplied SupportedResponse

	beforeVerifyHooks    []BeforeVerifyHook
	afterVerifyHooks     []AfterVerifyHook
	onVerifyFailureHooks []OnVerifyFailureHook

	beforeSettleHooks    []BeforeSettleHook
	afterSettleHooks     []AfterSettleHook
	onSettleFailureHooks []OnSettleFailureHook
}

// New creates a facilitator backed by the given verifier and settler.
func New(verifier Verifier, settler Settler) *facilitator {
	return &facilitator{verifier: verifier, settler: settler}
}

// RegisterSupported sets the (scheme, network) list surfaced by GetSupported.
func (f *facilitator) RegisterSupported(kinds []SupportedKind) *facilitator {
	f.supplied = SupportedResponse{Kinds: kinds}
	return f
}

func (f *facilitator) OnBeforeVerify(hook BeforeVerifyHook) *facilitator {
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

func (f *facilitator) OnAfterVerify(hook AfterVerifyHook) *facilitator {
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

func (f *facilitator) OnVerifyFailure(hook OnVerifyFailureHook) *facilitator {
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

func (f *facilitator) OnBeforeSettle(hook BeforeSettleHook) *facilitator {
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

func (f *facilitator) OnAfterSettle(hook AfterSettleHook) *facilitator {
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

func (f *facilitator) OnSettleFailure(hook OnSettleFailureHook) *facilitator {
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

// Verify runs the hook chain around the verifier.
func (f *facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	hookCtx := VerifyContext{Ctx: ctx, Payload: payload, Requirements: requirements}

	for _, hook := range f.beforeVerifyHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return &VerifyResponse{IsValid: false, InvalidReason: result.Reason}, nil
		}
	}

	verifyResult, verifyErr := f.verifier.Verify(ctx, payload, requirements)
	if verifyErr != nil {
		failureCtx := VerifyFailureContext{VerifyContext: hookCtx, Error: verifyErr}
		for _, hook := range f.onVerifyFailureHooks {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return nil, verifyErr
	}

	resultCtx := VerifyResultContext{VerifyContext: hookCtx, Result: verifyResult}
	for _, hook := range f.afterVerifyHooks {
		_ = hook(resultCtx) // logged by the hook itself, never fails the request
	}

	return verifyResult, nil
}

// Settle runs the hook chain around the settlement engine.
func (f *facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error) {
	hookCtx := SettleContext{Ctx: ctx, Payload: payload, Requirements: requirements}

	for _, hook := range f.beforeSettleHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return &SettleResponse{Success: false, ErrorReason: result.Reason, Network: requirements.Network}, nil
		}
	}

	settleResult, settleErr := f.settler.Settle(ctx, payload, requirements)
	if settleErr != nil {
		failureCtx := SettleFailureContext{SettleContext: hookCtx, Error: settleErr}
		for _, hook := range f.onSettleFailureHooks {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return nil, settleErr
	}

	resultCtx := SettleResultContext{SettleContext: hookCtx, Result: settleResult}
	for _, hook := range f.afterSettleHooks {
		_ = hook(resultCtx)
	}

	return settleResult, nil
}

// GetSupported returns the (scheme, network) combinations this facilitator accepts.
func (f *facilitator) GetSupported() SupportedResponse {
	return f.supplied
}
