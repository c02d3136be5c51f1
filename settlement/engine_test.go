package settlement

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	facilitator "github.com/awesome-doge/settlement-core/go"
	"github.com/awesome-doge/settlement-core/go/audit"
	"github.com/awesome-doge/settlement-core/go/commitment"
	"github.com/awesome-doge/settlement-core/go/fees"
	"github.com/awesome-doge/settlement-core/go/oracle/gas"
	"github.com/awesome-doge/settlement-core/go/oracle/price"
	"github.com/awesome-doge/settlement-core/go/registry"
	"github.com/awesome-doge/settlement-core/go/router"
	"github.com/awesome-doge/settlement-core/go/signer"
)

type stubVerifier struct {
	resp *facilitator.VerifyResponse
	err  error
}

func (s *stubVerifier) Verify(ctx context.Context, payload facilitator.PaymentPayload, requirements facilitator.PaymentRequirements) (*facilitator.VerifyResponse, error) {
	return s.resp, s.err
}

type stubFetcher struct{}

func (stubFetcher) FetchGasPriceWei(ctx context.Context, network string) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}
func (stubFetcher) FetchNativePriceUSD(ctx context.Context, network string) (float64, error) {
	return 2500.0, nil
}
func (stubFetcher) FetchAssetPriceUSD(ctx context.Context, network string) (float64, error) {
	return 1.0, nil
}

// fakeEngineClient is a router.Client double whose simulate/write/receipt
// behavior is configurable per test.
type fakeEngineClient struct {
	simulateErr error
	writeErr    error
	txHash      common.Hash
	receipt     *types.Receipt
	receiptErr  error
}

func (c *fakeEngineClient) Address() common.Address { return common.Address{} }
func (c *fakeEngineClient) ChainID() *big.Int        { return big.NewInt(84532) }
func (c *fakeEngineClient) ReadContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (c *fakeEngineClient) WriteContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, gasLimit uint64, args ...interface{}) (common.Hash, error) {
	if c.writeErr != nil {
		return common.Hash{}, c.writeErr
	}
	return c.txHash, nil
}
func (c *fakeEngineClient) SimulateContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) error {
	return c.simulateErr
}
func (c *fakeEngineClient) WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.receipt, c.receiptErr
}
func (c *fakeEngineClient) GetBalance(ctx context.Context, account, token common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (c *fakeEngineClient) GetCode(ctx context.Context, account common.Address) ([]byte, error) {
	return nil, nil
}
func (c *fakeEngineClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

var _ router.Client = (*fakeEngineClient)(nil)

func testNetworkConfig(t *testing.T) registry.NetworkConfig {
	t.Helper()
	cfg, err := registry.BuildConfig(registry.NetworkSettingsSource{
		Network:          "base-sepolia",
		RPCURL:           "https://example.invalid",
		SettlementRouter: "0x3333333333333333333333333333333333333333",
		AssetAddress:     "0x2222222222222222222222222222222222222222",
		AssetDecimals:    6,
		AssetEIP712Name:  "USD Coin",
		AssetEIP712Ver:   "2",
	})
	if err != nil {
		t.Fatalf("BuildConfig: %v", err)
	}
	return cfg
}

func testEngine(t *testing.T, client router.Client, verifyResp *facilitator.VerifyResponse) (*Engine, *registry.NetworkConfig) {
	t.Helper()
	cfg := testNetworkConfig(t)
	reg, err := registry.New(cfg)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	pool := signer.New(zap.NewNop())
	pool.AddClient("base-sepolia", client)

	gasOracle, err := gas.New(stubFetcher{}, zap.NewNop(), time.Minute)
	if err != nil {
		t.Fatalf("gas.New: %v", err)
	}
	priceOracle, err := price.New(stubFetcher{}, zap.NewNop(), time.Minute, nil, nil)
	if err != nil {
		t.Fatalf("price.New: %v", err)
	}

	e := New(Config{
		Registry:             reg,
		Verifier:             &stubVerifier{resp: verifyResp},
		Pool:                 pool,
		GasOracle:            gasOracle,
		PriceOracle:          priceOracle,
		Fees:                 fees.New(reg),
		Sink:                 audit.NewMultiSink(audit.NewZapSink(zap.NewNop())),
		Logger:               zap.NewNop(),
		SignerAcquireTimeout: time.Second,
		SignerQuarantineTTL:  time.Minute,
	})
	return e, &cfg
}

// validSettlementPayload builds a payload/requirements pair whose nonce is
// the correct commitment for its fields, so CommitmentChecked passes.
func validSettlementPayload(t *testing.T, cfg registry.NetworkConfig) (facilitator.PaymentPayload, facilitator.PaymentRequirements) {
	t.Helper()
	req := facilitator.PaymentRequirements{
		Scheme:            facilitator.SchemeExact,
		Network:           facilitator.Network("base-sepolia"),
		MaxAmountRequired: big.NewInt(1_000_000),
		PayTo:             "0x4444444444444444444444444444444444444444",
		Asset:             "0x2222222222222222222222222222222222222222",
	}

	extra := facilitator.SettlementExtra{
		SettlementRouter: "0x3333333333333333333333333333333333333333",
		Salt:             [32]byte{0xAA},
		PayTo:            "0x4444444444444444444444444444444444444444",
		FacilitatorFee:   big.NewInt(1_000),
		Hook:             "",
		HookData:         nil,
	}

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	params := commitment.Params{
		ChainID:        big.NewInt(cfg.ChainID),
		Router:         common.HexToAddress(extra.SettlementRouter),
		Token:          common.HexToAddress(req.Asset),
		From:           from,
		Value:          big.NewInt(1_000_000),
		ValidAfter:     big.NewInt(time.Now().Unix() - 60),
		ValidBefore:    big.NewInt(time.Now().Unix() + 600),
		Salt:           extra.Salt,
		PayTo:          common.HexToAddress(extra.PayTo),
		FacilitatorFee: extra.FacilitatorFee,
		Hook:           common.Address{},
		HookData:       nil,
	}
	nonce, err := commitment.Compute(params)
	if err != nil {
		t.Fatalf("commitment.Compute: %v", err)
	}

	auth := facilitator.Authorization{
		From:        from.Hex(),
		To:          extra.PayTo,
		Value:       params.Value,
		ValidAfter:  params.ValidAfter,
		ValidBefore: params.ValidBefore,
		Nonce:       nonce,
	}

	payload := facilitator.PaymentPayload{
		Scheme:  facilitator.SchemeExact,
		Network: req.Network,
		Payload: facilitator.PaymentPayloadInner{
			Authorization: auth,
			Signature:     make([]byte, 65),
			Extra:         extra,
		},
	}
	return payload, req
}

func TestSettleHappyPath(t *testing.T) {
	cfg := testNetworkConfig(t)
	txHash := common.HexToHash("0xdead")
	client := &fakeEngineClient{
		txHash: txHash,
		receipt: &types.Receipt{
			Status:            1,
			GasUsed:           80_000,
			EffectiveGasPrice: big.NewInt(1_000_000_000),
		},
	}

	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: true})
	payload, req := validSettlementPayload(t, cfg)

	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got errorReason=%q", resp.ErrorReason)
	}
	if resp.Transaction != txHash.Hex() {
		t.Errorf("transaction mismatch: got %s want %s", resp.Transaction, txHash.Hex())
	}
	if resp.GasMetrics == nil || resp.GasMetrics.GasUsed != 80_000 {
		t.Errorf("expected gas metrics to be populated, got %+v", resp.GasMetrics)
	}
}

func TestSettleRejectsTamperedCommitment(t *testing.T) {
	cfg := testNetworkConfig(t)
	client := &fakeEngineClient{}
	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: true})

	payload, req := validSettlementPayload(t, cfg)
	// Merchant substitutes payTo after signing: the commitment embedded in
	// the nonce no longer matches the recomputed one.
	payload.Payload.Extra.PayTo = "0x5555555555555555555555555555555555555555"

	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if resp.Success || resp.ErrorReason != facilitator.ReasonInvalidCommitment {
		t.Errorf("expected invalid_commitment, got success=%v reason=%q", resp.Success, resp.ErrorReason)
	}
}

func TestSettleFailsVerification(t *testing.T) {
	cfg := testNetworkConfig(t)
	client := &fakeEngineClient{}
	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: false, InvalidReason: facilitator.ReasonAuthorizationExpired})

	payload, req := validSettlementPayload(t, cfg)
	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if resp.Success || resp.ErrorReason != facilitator.ReasonAuthorizationExpired {
		t.Errorf("expected authorization_expired, got success=%v reason=%q", resp.Success, resp.ErrorReason)
	}
}

func TestSettleClassifiesAlreadySettledRevert(t *testing.T) {
	cfg := testNetworkConfig(t)
	client := &fakeEngineClient{simulateErr: alreadySettledRevertErr{}}
	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: true})

	payload, req := validSettlementPayload(t, cfg)
	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if resp.Success || resp.ErrorReason != facilitator.ReasonAlreadySettled {
		t.Errorf("expected already_settled, got success=%v reason=%q", resp.Success, resp.ErrorReason)
	}
}

func TestSettleSurvivesUnrecognizedSimulationRevert(t *testing.T) {
	cfg := testNetworkConfig(t)
	txHash := common.HexToHash("0xbeef")
	client := &fakeEngineClient{
		simulateErr: errors.New("execution reverted: custom merchant require()"),
		txHash:      txHash,
		receipt: &types.Receipt{
			Status:            1,
			GasUsed:           90_000,
			EffectiveGasPrice: big.NewInt(1_000_000_000),
		},
	}
	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: true})

	payload, req := validSettlementPayload(t, cfg)
	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !resp.Success {
		t.Errorf("expected simulation-only revert to not block submission, got reason=%q", resp.ErrorReason)
	}
}

func TestSettleSurfacesOnChainRevertStatus(t *testing.T) {
	cfg := testNetworkConfig(t)
	txHash := common.HexToHash("0xcafe")
	client := &fakeEngineClient{
		txHash: txHash,
		receipt: &types.Receipt{
			Status:            0,
			GasUsed:           50_000,
			EffectiveGasPrice: big.NewInt(1_000_000_000),
		},
	}
	e, _ := testEngine(t, client, &facilitator.VerifyResponse{IsValid: true})

	payload, req := validSettlementPayload(t, cfg)
	resp, err := e.Settle(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if resp.Success || resp.ErrorReason != facilitator.ReasonInvalidTransactionState {
		t.Errorf("expected invalid_transaction_state, got success=%v reason=%q", resp.Success, resp.ErrorReason)
	}
}

// alreadySettledRevertErr fakes go-ethereum's rpc.DataError interface with
// the AlreadySettled() selector as revert data.
type alreadySettledRevertErr struct{}

func (alreadySettledRevertErr) Error() string { return "execution reverted" }
func (alreadySettledRevertErr) ErrorData() interface{} {
	sel := selectorOf("AlreadySettled()")
	return "0x" + hex.EncodeToString(sel[:])
}
