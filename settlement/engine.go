// Package settlement implements the settlement engine (component C9): the
// eleven-step pipeline that takes a verified EIP-3009 authorization from
// Received through Done, leasing a signer, pricing gas, simulating,
// submitting, and accounting for the result. Any step can drop the request
// to Failed(reason); nothing is retried silently.
package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
	"github.com/awesome-doge/settlement-core/go/audit"
	"github.com/awesome-doge/settlement-core/go/balance"
	"github.com/awesome-doge/settlement-core/go/commitment"
	"github.com/awesome-doge/settlement-core/go/fees"
	"github.com/awesome-doge/settlement-core/go/oracle/gas"
	"github.com/awesome-doge/settlement-core/go/oracle/price"
	"github.com/awesome-doge/settlement-core/go/registry"
	"github.com/awesome-doge/settlement-core/go/router"
	"github.com/awesome-doge/settlement-core/go/signer"
)

// Verifier is the subset of verify.Verifier the engine re-runs before
// committing to settle, kept as an interface so engine tests can substitute
// a stub without constructing a real registry/EIP-712 digest.
type Verifier interface {
	Verify(ctx context.Context, payload facilitator.PaymentPayload, requirements facilitator.PaymentRequirements) (*facilitator.VerifyResponse, error)
}

// Engine wires every settlement dependency together and implements
// facilitator.Settler.
type Engine struct {
	registry    *registry.Registry
	verifier    Verifier
	pool        *signer.Pool
	gasOracle   *gas.Oracle
	priceOracle *price.Oracle
	fees        *fees.Engine
	balances    *balance.Checker
	sink        audit.Sink
	logger      *zap.Logger

	signerAcquireTimeout time.Duration
	signerQuarantineTTL  time.Duration
}

// Config bundles Engine's constructor arguments.
type Config struct {
	Registry             *registry.Registry
	Verifier             Verifier
	Pool                 *signer.Pool
	GasOracle            *gas.Oracle
	PriceOracle          *price.Oracle
	Fees                 *fees.Engine
	Balances             *balance.Checker
	Sink                 audit.Sink
	Logger               *zap.Logger
	SignerAcquireTimeout time.Duration
	SignerQuarantineTTL  time.Duration
}

// New builds a settlement Engine.
func New(cfg Config) *Engine {
	return &Engine{
		registry:             cfg.Registry,
		verifier:             cfg.Verifier,
		pool:                 cfg.Pool,
		gasOracle:            cfg.GasOracle,
		priceOracle:          cfg.PriceOracle,
		fees:                 cfg.Fees,
		balances:             cfg.Balances,
		sink:                 cfg.Sink,
		logger:               cfg.Logger,
		signerAcquireTimeout: cfg.SignerAcquireTimeout,
		signerQuarantineTTL:  cfg.SignerQuarantineTTL,
	}
}

var _ facilitator.Settler = (*Engine)(nil)

// Settle runs the full pipeline. It returns an error only for protocol-level
// malformedness; a rejected-but-well-formed settlement attempt returns
// {success: false, errorReason} with a nil error.
func (e *Engine) Settle(ctx context.Context, payload facilitator.PaymentPayload, requirements facilitator.PaymentRequirements) (*facilitator.SettleResponse, error) {
	start := time.Now()
	network := string(requirements.Network)
	auth := payload.Payload.Authorization
	extra := payload.Payload.Extra
	payer := auth.From

	requestID := fmt.Sprintf("%s-%x", network, auth.Nonce[:8])

	e.emit(requestID, network, payer, "", facilitator.StateReceived, "", "")

	if err := facilitator.ValidatePaymentPayload(payload); err != nil {
		return nil, fmt.Errorf("client error: %w", err)
	}
	if err := facilitator.ValidatePaymentRequirements(requirements); err != nil {
		return nil, fmt.Errorf("client error: %w", err)
	}

	netCfg, err := e.registry.Get(network)
	if err != nil {
		return nil, fmt.Errorf("client error: UNSUPPORTED_NETWORK: %w", err)
	}
	assetAddr, err := commitment.ParseAddress("asset", requirements.Asset)
	if err != nil {
		return nil, fmt.Errorf("client error: %w", err)
	}
	if !netCfg.AssetSupported(assetAddr) {
		return nil, fmt.Errorf("client error: %s", facilitator.ReasonUnsupportedToken)
	}
	e.emit(requestID, network, payer, "", facilitator.StateValidated, "", "")

	verifyResp, err := e.verifier.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if !verifyResp.IsValid {
		return e.fail(requestID, network, payer, "", facilitator.StateVerified, verifyResp.InvalidReason, start)
	}
	e.emit(requestID, network, payer, extra.Hook, facilitator.StateVerified, "", "")

	routerAddr, token, hook, err := resolveAddresses(netCfg, requirements, extra)
	if err != nil {
		return nil, fmt.Errorf("client error: %w", err)
	}

	params := commitment.Params{
		ChainID:        big.NewInt(netCfg.ChainID),
		Router:         routerAddr,
		Token:          token,
		From:           common.HexToAddress(auth.From),
		Value:          auth.Value,
		ValidAfter:     auth.ValidAfter,
		ValidBefore:    auth.ValidBefore,
		Salt:           extra.Salt,
		PayTo:          common.HexToAddress(extra.PayTo),
		FacilitatorFee: extra.FacilitatorFee,
		Hook:           hook,
		HookData:       extra.HookData,
	}
	ok, err := commitment.Verify(auth.Nonce, params)
	if err != nil {
		return nil, fmt.Errorf("client error: %w", err)
	}
	if !ok {
		return e.fail(requestID, network, payer, extra.Hook, facilitator.StateCommitmentChecked, facilitator.ReasonInvalidCommitment, start)
	}
	e.emit(requestID, network, payer, extra.Hook, facilitator.StateCommitmentChecked, "", "")

	lease, err := e.pool.Acquire(ctx, network, e.signerAcquireTimeout)
	if err != nil {
		return e.fail(requestID, network, payer, extra.Hook, facilitator.StateSignerLeased, facilitator.ReasonNoSignerAvailable, start)
	}
	e.emit(requestID, network, payer, extra.Hook, facilitator.StateSignerLeased, "", "")

	client := lease.Client()
	resp, outcome := e.settleWithSigner(ctx, requestID, network, payer, netCfg, requirements, payload, client, params, start)
	e.pool.Release(lease, outcome, e.signerQuarantineTTL)
	return resp, nil
}

// settleWithSigner runs the remaining pipeline steps once a signer is
// leased, and reports the outcome the caller should release the lease with.
func (e *Engine) settleWithSigner(
	ctx context.Context,
	requestID, network, payer string,
	netCfg registry.NetworkConfig,
	requirements facilitator.PaymentRequirements,
	payload facilitator.PaymentPayload,
	client router.Client,
	params commitment.Params,
	start time.Time,
) (*facilitator.SettleResponse, signer.Outcome) {
	extra := payload.Payload.Extra
	hook := extra.Hook

	gasPriceWei, err := e.gasOracle.GetGasPrice(ctx, network)
	if err != nil {
		resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateGasPriced, facilitator.ReasonUnexpectedSettleError, start)
		return resp, signer.OutcomeFailure
	}
	nativePriceUSD, err := e.priceOracle.GetNativePriceUSD(ctx, network)
	if err != nil {
		resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateGasPriced, facilitator.ReasonUnexpectedSettleError, start)
		return resp, signer.OutcomeFailure
	}
	tokenPriceUSD, err := e.priceOracle.GetPaymentTokenPriceUSD(ctx, network)
	if err != nil {
		resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateGasPriced, facilitator.ReasonUnexpectedSettleError, start)
		return resp, signer.OutcomeFailure
	}

	hookKind := classifyHookKind(hook, netCfg)
	minFee, err := e.fees.CalculateMinFacilitatorFee(netCfg, params.Hook, hookKind, netCfg.DefaultAsset.Decimals, gasPriceWei, nativePriceUSD, tokenPriceUSD)
	if err != nil {
		reason := facilitator.ReasonSettlementRouterNotConfig
		if feeErr, ok := err.(*fees.FeeError); ok {
			reason = feeErr.Reason
		}
		resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateGasPriced, reason, start)
		return resp, signer.OutcomeSuccess
	}
	if extra.FacilitatorFee == nil || extra.FacilitatorFee.Cmp(minFee.FeeBaseUnits) < 0 {
		e.logger.Warn("settlement fee below computed minimum; proceeding, facilitator absorbs the shortfall",
			zap.String("network", network), zap.String("requestId", requestID))
	}

	// The affordability bound is computed against the fee actually being
	// paid, not the computed minimum: a facilitator that absorbs a shortfall
	// (logged above) still needs a gas ceiling sized to what it collects.
	facilitatorFeeUSD := minFee.FeeUSD
	if extra.FacilitatorFee != nil && extra.FacilitatorFee.Sign() > 0 {
		facilitatorFeeUSD = baseUnitsToFloat(extra.FacilitatorFee, netCfg.DefaultAsset.Decimals) * tokenPriceUSD
	}
	gasLimit := e.fees.CalculateEffectiveGasLimit(netCfg, hookKind, facilitatorFeeUSD, gasPriceWei, nativePriceUSD)
	e.emit(requestID, network, payer, hook, facilitator.StateGasPriced, "", "")

	simArgs := settleAndExecuteArgs(params, payload.Payload.Authorization.Nonce, payload.Payload.Signature)
	if err := client.SimulateContract(ctx, params.Router, router.SettlementRouterABI, router.FunctionSettleAndExecute, simArgs...); err != nil {
		reason := classifyRevert(err)
		if fatalRevertReasons[reason] {
			resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateSimulated, reason, start)
			return resp, signer.OutcomeSuccess
		}
		e.logger.Warn("settlement simulation reverted with an unrecognized reason; submitting anyway",
			zap.String("network", network), zap.String("requestId", requestID), zap.Error(err))
	}
	e.emit(requestID, network, payer, hook, facilitator.StateSimulated, "", "")

	// Balance was already checked during verification; re-check defensively
	// here, just before submission, since time has passed and the payer's
	// balance may have moved (e.g. a racing settlement against the same funds).
	if e.balances != nil {
		result := e.balances.CheckBalance(ctx, client, params.From, params.Token, params.Value)
		if !result.HasSufficient {
			resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateSimulated, facilitator.ReasonInsufficientFunds, start)
			return resp, signer.OutcomeSuccess
		}
	}

	txHash, err := client.WriteContract(ctx, params.Router, router.SettlementRouterABI, router.FunctionSettleAndExecute, gasLimit, simArgs...)
	if err != nil {
		resp, _ := e.fail(requestID, network, payer, hook, facilitator.StateSubmitted, facilitator.ReasonUnexpectedSettleError, start)
		return resp, signer.OutcomeFailure
	}
	e.emit(requestID, network, payer, hook, facilitator.StateSubmitted, "", txHash.Hex())

	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		resp, _ := e.failWithTx(requestID, network, payer, hook, facilitator.StateConfirmed, facilitator.ReasonUnexpectedSettleError, txHash.Hex(), start)
		return resp, signer.OutcomeFailure
	}
	if receipt.Status != 1 {
		resp, _ := e.failWithTx(requestID, network, payer, hook, facilitator.StateConfirmed, facilitator.ReasonInvalidTransactionState, txHash.Hex(), start)
		return resp, signer.OutcomeSuccess
	}
	e.emit(requestID, network, payer, hook, facilitator.StateConfirmed, "", txHash.Hex())
	e.sink.RecordGasUsed(network, receipt.GasUsed)

	gasMetrics := accountForSettlement(receipt, gasPriceWei, nativePriceUSD, extra.FacilitatorFee, tokenPriceUSD, netCfg.DefaultAsset.Decimals)
	if !gasMetrics.Profitable {
		e.logger.Warn("settlement unprofitable: gas cost exceeded facilitator fee",
			zap.String("network", network), zap.String("requestId", requestID),
			zap.Float64("gasCostUSD", gasMetrics.ActualGasCostUSD), zap.Float64("feeUSD", gasMetrics.FacilitatorFeeUSD))
	}
	e.emit(requestID, network, payer, hook, facilitator.StateAccounted, "", txHash.Hex())

	e.sink.RecordSettleDuration(network, time.Since(start))
	e.emit(requestID, network, payer, hook, facilitator.StateDone, "", txHash.Hex())

	return &facilitator.SettleResponse{
		Success:     true,
		Payer:       payer,
		Transaction: txHash.Hex(),
		Network:     requirements.Network,
		GasMetrics:  &gasMetrics,
	}, signer.OutcomeSuccess
}

func (e *Engine) fail(requestID, network, payer, hook, state, reason string, start time.Time) (*facilitator.SettleResponse, error) {
	return e.failWithTx(requestID, network, payer, hook, state, reason, "", start)
}

func (e *Engine) failWithTx(requestID, network, payer, hook, state, reason, tx string, start time.Time) (*facilitator.SettleResponse, error) {
	e.emit(requestID, network, payer, hook, facilitator.StateFailed, reason, tx)
	e.sink.IncrementError(network, reason)
	return &facilitator.SettleResponse{
		Success:     false,
		ErrorReason: reason,
		Payer:       payer,
		Transaction: tx,
		Network:     facilitator.Network(network),
	}, nil
}

func (e *Engine) emit(requestID, network, payer, hook, state, reason, tx string) {
	e.sink.RecordTransition(audit.Transition{
		RequestID:   requestID,
		Network:     network,
		Payer:       payer,
		Hook:        hook,
		State:       state,
		Reason:      reason,
		Transaction: tx,
		At:          time.Now(),
	})
}

// resolveAddresses never trusts the payload's own claimed settlementRouter
// as the address to call: the router is taken from the network registry,
// the operator's own configuration, not from attacker-controlled request
// data. If the payer signed against a different router than the one
// currently configured, the commitment recomputed from this address will
// not match the authorization's nonce and CommitmentChecked will reject it.
func resolveAddresses(netCfg registry.NetworkConfig, requirements facilitator.PaymentRequirements, extra facilitator.SettlementExtra) (routerAddr, token, hook common.Address, err error) {
	routerAddr = netCfg.SettlementRouter
	token, err = commitment.ParseAddress("asset", requirements.Asset)
	if err != nil {
		return common.Address{}, common.Address{}, common.Address{}, err
	}
	if extra.Hook == "" {
		return routerAddr, token, common.Address{}, nil
	}
	hook, err = commitment.ParseAddress("hook", extra.Hook)
	if err != nil {
		return common.Address{}, common.Address{}, common.Address{}, err
	}
	return routerAddr, token, hook, nil
}

func classifyHookKind(hookAddr string, netCfg registry.NetworkConfig) fees.HookKind {
	if hookAddr == "" {
		return fees.HookKindGeneric
	}
	if common.HexToAddress(hookAddr) == netCfg.Hooks.Transfer {
		return fees.HookKindTransfer
	}
	return fees.HookKindCustom
}

// settleAndExecuteArgs orders params, nonce and signature exactly as
// router.SettlementRouterABI's settleAndExecute method expects. nonce is the
// EIP-3009 authorization nonce, which under this protocol equals the
// commitment computed from params.
func settleAndExecuteArgs(p commitment.Params, nonce [32]byte, signature []byte) []interface{} {
	return []interface{}{
		p.Token,
		p.From,
		p.Value,
		p.ValidAfter,
		p.ValidBefore,
		nonce,
		signature,
		p.Salt,
		p.PayTo,
		p.FacilitatorFee,
		p.Hook,
		p.HookData,
	}
}
