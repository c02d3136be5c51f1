package router

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the chain-access surface every domain package (balance, signer,
// settlement) depends on instead of *ethclient.Client directly, so tests can
// substitute a fake. One Client is bound to exactly one EVM account and one
// RPC endpoint. contractABI is always a pre-parsed abi.ABI (SettlementRouterABI,
// ERC20ABI or ChainlinkFeedABI) rather than a raw fragment, so packing never
// re-parses JSON on the hot path.
type Client interface {
	Address() common.Address
	ChainID() *big.Int

	// ReadContract calls a view/pure method and decodes its single return
	// value. Used for balanceOf, isSettled, calculateContextKey, getPendingFees.
	ReadContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (interface{}, error)

	// WriteContract packs and submits a state-changing call, returning the
	// transaction hash. gasLimit is the caller-computed ceiling; the client
	// assigns the nonce itself so callers never set one explicitly.
	WriteContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, gasLimit uint64, args ...interface{}) (common.Hash, error)

	// SimulateContract performs an eth_call with the same parameters
	// WriteContract would submit, returning the call's error (which carries
	// the raw revert data, if any) without broadcasting anything. Decoding
	// the revert is left to the caller.
	SimulateContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) error

	WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	GetBalance(ctx context.Context, account, token common.Address) (*big.Int, error)
	GetCode(ctx context.Context, account common.Address) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// EVMClient is the concrete Client backed by go-ethereum's ethclient and a
// single ECDSA signing key.
type EVMClient struct {
	rpc        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// Dial connects to rpcURL and binds privateKeyHex as the signing key for the
// given chain id.
func Dial(ctx context.Context, rpcURL string, chainID *big.Int, privateKeyHex string) (*EVMClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	key, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}

	return &EVMClient{
		rpc:        rpc,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}, nil
}

func (c *EVMClient) Address() common.Address { return c.address }
func (c *EVMClient) ChainID() *big.Int       { return new(big.Int).Set(c.chainID) }

func (c *EVMClient) ReadContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	results, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (c *EVMClient) SimulateContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) error {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	_, err = c.rpc.CallContract(ctx, ethereum.CallMsg{From: c.address, To: &contract, Data: input}, nil)
	return err
}

func (c *EVMClient) WriteContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, gasLimit uint64, args ...interface{}) (common.Hash, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	tipCap, err := c.rpc.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(1_500_000_000)
	}
	feeCap, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &contract,
		Data:      input,
	})

	signer := types.NewLondonSigner(c.chainID)
	signedTx, err := types.SignTx(tx, signer, c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}

	return signedTx.Hash(), nil
}

func (c *EVMClient) WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by ctx instead, a receipt wait can legitimately take minutes

	var receipt *types.Receipt
	operation := func() error {
		r, err := c.rpc.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err // retried: not yet mined, or a transient RPC error
		}
		receipt = r
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("wait for receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

func (c *EVMClient) GetBalance(ctx context.Context, account, token common.Address) (*big.Int, error) {
	result, err := c.ReadContract(ctx, token, ERC20ABI, FunctionBalanceOf, account)
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected return type %T", result)
	}
	return balance, nil
}

func (c *EVMClient) GetCode(ctx context.Context, account common.Address) ([]byte, error) {
	return c.rpc.CodeAt(ctx, account, nil)
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.rpc.SuggestGasPrice(ctx)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
